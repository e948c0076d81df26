package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raystack/scale/config"
	"github.com/raystack/scale/server"
)

type handlerCommand struct {
	configFilePath string
	workers        int
}

// NewHandlerCommand initializes command to start handling messages
func NewHandlerCommand() *cobra.Command {
	handler := &handlerCommand{}

	cmd := &cobra.Command{
		Use:     "handler",
		Short:   "Receives and executes messages until interrupted",
		Example: "scale handler -c scale.yaml --workers 8",
		RunE:    handler.RunE,
	}
	cmd.Flags().StringVarP(&handler.configFilePath, "config", "c", handler.configFilePath, "File path for server configuration")
	cmd.Flags().IntVarP(&handler.workers, "workers", "w", handler.workers, "Messages executed concurrently, overrides the configuration")
	return cmd
}

func (h *handlerCommand) RunE(_ *cobra.Command, _ []string) error {
	conf, err := config.LoadConfig(h.configFilePath)
	if err != nil {
		return err
	}
	if h.workers > 0 {
		conf.Messaging.Workers = h.workers
	}

	scaleServer, err := server.New(conf)
	if err != nil {
		return fmt.Errorf("unable to create server: %w", err)
	}
	defer scaleServer.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return scaleServer.Run(ctx)
}
