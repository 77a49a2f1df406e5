package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Backend names accepted by the "backend" setting.
const (
	BackendDiskv  = "diskv"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Config carries the settings needed to open a Persistence.
type Config interface {
	BasePath() string
	Backend() string
}

// Settings is the full sandlab configuration as loaded from .sandlab.yaml and
// SANDLAB_* environment variables.
type Settings struct {
	Path string `json:"path" yaml:"path"`
	// Store selects the persistence backend.
	Store string `json:"backend" yaml:"backend"`
	// Server is the base URL of a remote storage engine. Empty means the local
	// store is used directly.
	Server   string `json:"server,omitempty" yaml:"server,omitempty"`
	Listen   string `json:"listen" yaml:"listen"`
	Workflow string `json:"workflow" yaml:"workflow"`
}

func (s *Settings) BasePath() string { return s.Path }

func (s *Settings) Backend() string { return s.Store }

// LoadConfig reads the configuration, walking ./ and $SANDLAB_CONFIG_PATH for
// a .sandlab file.
func LoadConfig() (*Settings, error) {
	v := viper.New()
	v.SetDefault("path", "~/.sandlab.db")
	v.SetDefault("backend", BackendDiskv)
	v.SetDefault("listen", "127.0.0.1:8087")
	v.SetDefault("workflow", "sand")
	v.SetConfigName(".sandlab") // .yaml is implicit
	v.SetEnvPrefix("SANDLAB")
	v.AutomaticEnv()

	if override := os.Getenv("SANDLAB_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	v.AddConfigPath("./")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("store: read config: %w", err)
		}
	}

	path, err := homedir.Expand(v.GetString("path"))
	if err != nil {
		return nil, fmt.Errorf("store: expand path: %w", err)
	}
	s := &Settings{
		Path:     path,
		Store:    strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
		Server:   strings.TrimRight(strings.TrimSpace(v.GetString("server")), "/"),
		Listen:   v.GetString("listen"),
		Workflow: v.GetString("workflow"),
	}
	switch s.Store {
	case BackendDiskv, BackendBadger, BackendSQLite:
	default:
		return nil, fmt.Errorf("store: unknown backend %q", s.Store)
	}
	return s, nil
}
