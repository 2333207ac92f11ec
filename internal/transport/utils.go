package transport

import (
	"github.com/keepmind9/syncbot/pkg/constants"
)

// maskSecret masks sensitive information for logging
func maskSecret(s string) string {
	if len(s) <= constants.MinSecretLengthForMasking {
		return "***"
	}
	return s[:constants.SecretMaskPrefixLength] + "***" + s[len(s)-constants.SecretMaskSuffixLength:]
}

func authEvent(state AuthorizationState) Event {
	return AuthorizationStateEvent{State: state}
}

func connEvent(state ConnectionState) Event {
	return ConnectionStateEvent{State: state}
}
