package core

import (
	"fmt"
	"io"
	"sync"

	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/internal/transport"
	"github.com/sirupsen/logrus"
)

// MessagePrinter receives every text message once its sender is resolved
type MessagePrinter interface {
	PrintMessage(sender transport.User, msg transport.Message) error
}

// ConsolePrinter writes messages as plain lines
type ConsolePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsolePrinter creates a printer writing to out
func NewConsolePrinter(out io.Writer) *ConsolePrinter {
	return &ConsolePrinter{out: out}
}

// PrintMessage implements MessagePrinter
func (p *ConsolePrinter) PrintMessage(sender transport.User, msg transport.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"chat_id":    msg.ChatID,
		"message_id": msg.ID,
		"sender_id":  sender.ID,
	}).Debug("printing-message")

	_, err := fmt.Fprintf(p.out, "New message from %s %s: %q\n", sender.FirstName, sender.LastName, msg.Text)
	return err
}
