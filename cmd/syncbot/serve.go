package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/keepmind9/syncbot/internal/core"
	"github.com/keepmind9/syncbot/internal/logger"
	"github.com/keepmind9/syncbot/internal/transport"
	"github.com/keepmind9/syncbot/pkg/constants"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile   string
	logoutOnEnd  bool
	validateOnly bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start syncbot main process",
		Long:  "Log the bot in, print every incoming text message with its sender, and run until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			config, err := core.LoadConfig(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			if validateOnly {
				result := validateFile(configFile)
				outputValidationResult(cmd.OutOrStdout(), result, false)
				if !result.Valid {
					os.Exit(1)
				}
				return
			}

			logConfig := logger.Config{
				Level:        config.Logging.Level,
				File:         config.Logging.File,
				MaxSize:      config.Logging.MaxSize,
				MaxBackups:   config.Logging.MaxBackups,
				MaxAge:       config.Logging.MaxAge,
				Compress:     config.Logging.Compress,
				EnableStdout: config.StdoutEnabled(),
			}
			if err := logger.InitLogger(logConfig); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"transport":   config.Transport,
				"log_level":   config.Logging.Level,
				"log_file":    config.Logging.File,
			}).Info("logger-initialized")

			client, err := newTransport(config)
			if err != nil {
				log.Fatalf("Failed to create transport: %v", err)
			}

			engine := core.NewEngine(config, client,
				core.FileSource{Path: configFile, ApplicationVersion: Version},
				core.NewConsolePrinter(os.Stdout))

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			engineErrChan := make(chan error, 1)
			go func() {
				engineErrChan <- engine.Run(context.Background())
			}()

			select {
			case sig := <-sigChan:
				logger.WithField("signal", sig.String()).Info("shutting-down")
				if err := engine.Stop(logoutOnEnd); err != nil {
					logger.WithField("error", err).Error("shutdown-incomplete")
				}
			case <-engine.Closed():
				logger.Info("transport-closed-by-backend")
				if err := engine.Stop(false); err != nil {
					logger.WithField("error", err).Error("shutdown-incomplete")
				}
			case err := <-engineErrChan:
				if err != nil {
					log.Fatalf("Engine error: %v", err)
				}
			}

			logger.Info("syncbot-stopped")
		},
	}
)

// newTransport builds the client selected by config.Transport
func newTransport(config *core.Config) (transport.Client, error) {
	switch config.Transport {
	case core.TransportTelegram:
		return transport.NewTelegramClient(transport.TelegramOptions{
			Endpoint:    config.Telegram.Endpoint,
			RetryDelay:  config.AuthRetryDelay(),
			PollTimeout: config.PollTimeout(),
			EmitRaw:     config.OutputVerbosity > constants.RawEventVerbosity,
		}), nil
	case core.TransportDiscord:
		return transport.NewDiscordClient(transport.DiscordOptions{
			RetryDelay: config.AuthRetryDelay(),
		}), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", config.Transport)
	}
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
	serveCmd.Flags().BoolVar(&logoutOnEnd, "logout", false, "Log the bot session out on shutdown")
	serveCmd.Flags().BoolVar(&validateOnly, "validate", false, "Validate configuration and exit")
}
