package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raystack/scale/config"
	"github.com/raystack/scale/internal/store/postgres"
)

type versionCommand struct {
	configFilePath string
	withDB         bool
}

// NewVersionCommand initializes command to get version
func NewVersionCommand() *cobra.Command {
	version := &versionCommand{}

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print the version information",
		Example: "scale version [--with-db]",
		RunE:    version.RunE,
	}

	cmd.Flags().BoolVar(&version.withDB, "with-db", version.withDB, "Check for database schema version")
	cmd.Flags().StringVarP(&version.configFilePath, "config", "c", version.configFilePath, "File path for configuration")
	return cmd
}

func (v *versionCommand) RunE(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s-%s (%s)\n", config.AppName, config.BuildVersion, config.BuildCommit, config.BuildDate)
	if !v.withDB {
		return nil
	}

	conf, err := config.LoadConfig(v.configFilePath)
	if err != nil {
		return err
	}
	if conf.DB.DSN == "" {
		fmt.Fprintln(out, "Database: in-memory")
		return nil
	}
	schemaVersion, dirty, err := postgres.Version(conf.DB.DSN)
	if err != nil {
		return fmt.Errorf("unable to read schema version: %w", err)
	}
	fmt.Fprintf(out, "Database: schema version %d (dirty: %t)\n", schemaVersion, dirty)
	return nil
}
