package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raystack/scale/cmd/send"
	"github.com/raystack/scale/cmd/version"
	"github.com/raystack/scale/config"
	servercmd "github.com/raystack/scale/server/cmd"
	"github.com/raystack/scale/server/cmd/migration"
)

const prologueContents = `%s %s

scale processes jobs and recipes through a durable message queue
`

// New constructs the 'root' command.
// It houses all other sub commands
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:          config.AppName,
		Long:         fmt.Sprintf(prologueContents, config.AppName, config.BuildVersion),
		SilenceUsage: true,
	}

	cmd.AddCommand(
		servercmd.NewHandlerCommand(),
		send.NewSendCommand(),
		send.NewEchoCommand(),
		migration.NewMigrationCommand(),
		version.NewVersionCommand(),
	)
	return cmd
}
