package migration

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raystack/scale/internal/store/postgres"
)

type upCommand struct {
	configFilePath string
}

// NewMigrateUpCommand initializes command to apply every pending migration
func NewMigrateUpCommand() *cobra.Command {
	up := &upCommand{}
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Command to apply all pending migrations",
		RunE:  up.RunE,
	}
	cmd.Flags().StringVarP(&up.configFilePath, "config", "c", up.configFilePath, "File path for server configuration")
	return cmd
}

func (u *upCommand) RunE(_ *cobra.Command, _ []string) error {
	dsn, err := loadDSN(u.configFilePath)
	if err != nil {
		return err
	}

	fmt.Println("Executing migration up") // nolint:forbidigo
	if err := postgres.Migrate(dsn); err != nil {
		return fmt.Errorf("error during migration: %w", err)
	}
	version, dirty, err := postgres.Version(dsn)
	if err != nil {
		return fmt.Errorf("error reading migration version: %w", err)
	}
	fmt.Printf("Migration finished successfully at version %d (dirty: %t)\n", version, dirty) // nolint:forbidigo
	return nil
}
