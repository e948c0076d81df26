package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odpf/salt/config"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	DefaultFilename      = "scale"
	DefaultFileExtension = "yaml"
	DefaultEnvPrefix     = "SCALE"
	EmptyPath            = ""
)

var (
	FS       = afero.NewReadOnlyFs(afero.NewOsFs())
	execPath string
	homePath string
)

func init() {
	p, err := os.Executable()
	if err != nil {
		panic(err)
	}
	execPath = filepath.Dir(p)

	p, err = os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	homePath = p
}

// LoadConfig load the config from these locations:
// 1. filepath. ./scale <command> -c "path/to/scale.yaml"
// 2. env var. eg. SCALE_DB_DSN, SCALE_MESSAGING_BACKEND, etc
// 3. executable binary location
// 4. home dir
func LoadConfig(filePath string) (*Config, error) {
	return loadConfigFs(FS, filePath)
}

func loadConfigFs(fs afero.Fs, filePath string) (*Config, error) {
	cfg := &Config{}

	// getViperWithDefault + SetFs
	v := viper.New()
	v.SetFs(fs)

	opts := []config.LoaderOption{
		config.WithViper(v),
		config.WithName(DefaultFilename),
		config.WithType(DefaultFileExtension),
	}

	// load opt from filepath if exist
	if filePath != EmptyPath {
		if err := validateFilepath(fs, filePath); err != nil {
			return nil, err // if filepath not valid, returns err
		}
		opts = append(opts, config.WithFile(filePath))
	} else {
		// load opt from env var
		opts = append(opts, config.WithEnvPrefix(DefaultEnvPrefix), config.WithEnvKeyReplacer(".", "_"))

		// load opt from exec & home directory
		opts = append(opts, config.WithPath(execPath), config.WithPath(homePath))
	}

	l := config.NewLoader(opts...)
	if err := l.Load(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateFilepath(fs afero.Fs, fpath string) error {
	f, err := fs.Stat(fpath)
	if err != nil {
		return err
	}
	if !f.Mode().IsRegular() {
		return fmt.Errorf("%s not a file", fpath)
	}
	return nil
}
