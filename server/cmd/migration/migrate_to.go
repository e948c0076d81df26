package migration

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raystack/scale/config"
	"github.com/raystack/scale/internal/store/postgres"
)

type migrateTo struct {
	configFilePath string
	version        int
}

// NewMigrateToCommand initializes command for migration to a specific version
func NewMigrateToCommand() *cobra.Command {
	to := &migrateTo{}
	cmd := &cobra.Command{
		Use:   "to",
		Short: "Command to migrate to specific migration version",
		RunE:  to.RunE,
	}
	cmd.Flags().StringVarP(&to.configFilePath, "config", "c", to.configFilePath, "File path for server configuration")
	cmd.Flags().IntVarP(&to.version, "version", "v", -1, "Migration version to migrate to")
	return cmd
}

func (m *migrateTo) RunE(_ *cobra.Command, _ []string) error {
	if m.version < 0 {
		return fmt.Errorf("invalid migration version")
	}

	dsn, err := loadDSN(m.configFilePath)
	if err != nil {
		return err
	}

	fmt.Printf("Executing migration to version %d \n", m.version) // nolint:forbidigo
	err = postgres.ToVersion(uint(m.version), dsn)
	if err != nil {
		return fmt.Errorf("error during migration: %w", err)
	}
	fmt.Println("Migration finished successfully") // nolint:forbidigo
	return nil
}

func loadDSN(configFilePath string) (string, error) {
	conf, err := config.LoadConfig(configFilePath)
	if err != nil {
		return "", fmt.Errorf("error loading config: %w", err)
	}
	if conf.DB.DSN == "" {
		return "", errors.New("db dsn is not configured, the in-memory store needs no migration")
	}
	return conf.DB.DSN, nil
}
