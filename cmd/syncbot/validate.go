package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/keepmind9/syncbot/internal/core"
	"github.com/spf13/cobra"
)

var (
	validateConfigPath string
	validateJSON       bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Config    string   `json:"config"`
	Transport string   `json:"transport,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate syncbot configuration file",
	Long: `Validate the syncbot configuration file without connecting.

This command checks:
  - YAML (or JSON) syntax
  - Transport and timeout settings
  - Credentials needed by the authorization handshake

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	Run: func(cmd *cobra.Command, args []string) {
		configFile := validateConfigPath
		if configFile == "" {
			configFile = findConfigFile()
		}

		out := cmd.OutOrStdout()
		if configFile == "" {
			fmt.Fprintln(out, "❌ No configuration file found")
			fmt.Fprintln(out, "\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range defaultConfigLocations() {
				fmt.Fprintf(out, "  - %s\n", loc)
			}
			os.Exit(1)
		}

		result := validateFile(configFile)
		outputValidationResult(out, result, validateJSON)
		if !result.Valid {
			os.Exit(1)
		}
	},
}

func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		"configuration.json",
		filepath.Join(os.Getenv("HOME"), ".config/syncbot/config.yaml"),
		"/etc/syncbot/config.yaml",
	}
}

func findConfigFile() string {
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// validateFile loads configFile and collects problems the handshake would hit
func validateFile(configFile string) ValidationResult {
	cfg, err := core.LoadConfig(configFile)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Config: configFile,
			Errors: []string{err.Error()},
		}
	}

	warnings := validateConfigDetails(cfg)
	return ValidationResult{
		Valid:     len(warnings) == 0,
		Config:    configFile,
		Transport: cfg.Transport,
		Warnings:  warnings,
	}
}

func outputValidationResult(out io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(out, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(out, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(out, "✓ Configuration is valid")
		fmt.Fprintf(out, "  - Config: %s\n", result.Config)
		fmt.Fprintf(out, "  - Transport: %s\n", result.Transport)
		return
	}

	fmt.Fprintln(out, "❌ Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", errMsg)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(out, "  - %s\n", warning)
		}
	}
}

// validateConfigDetails reports credentials the handshake will ask for.
// LoadConfig accepts them missing since they are re-read at send time.
func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	if cfg.APIID <= 0 {
		warnings = append(warnings, "api_id is missing - the parameters step will fail")
	}
	if cfg.APIHash == "" {
		warnings = append(warnings, "api_hash is missing - the parameters step will fail")
	}
	if cfg.BotToken == "" {
		warnings = append(warnings, "bot_token is missing - the bot cannot log in")
	}

	return warnings
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
