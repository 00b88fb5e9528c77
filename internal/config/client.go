package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServer    = "localhost:50051"
	DefaultStartHour = 5
	DefaultEndHour   = 23
)

// Credentials are the tokens of the signed-in user.
type Credentials struct {
	UserID       string `yaml:"user_id"`
	Name         string `yaml:"name,omitempty"`
	Email        string `yaml:"email,omitempty"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// Client is the CLI configuration stored at ~/.config/timebox/config.yaml.
type Client struct {
	Server    string       `yaml:"server"`
	StartHour int          `yaml:"start_hour"`
	EndHour   int          `yaml:"end_hour"`
	Auth      *Credentials `yaml:"auth,omitempty"`
}

func DefaultClient() *Client {
	return &Client{Server: DefaultServer, StartHour: DefaultStartHour, EndHour: DefaultEndHour}
}

// Dir returns ~/.config/timebox.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "timebox"), nil
}

// DefaultPath is where LoadClient and SaveClient look when no path is given.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadClient reads path. A missing file yields the defaults.
func LoadClient(path string) (*Client, error) {
	cfg := DefaultClient()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	return cfg, nil
}

// SaveClient writes cfg to path with 0600 perms since it holds tokens.
func SaveClient(path string, cfg *Client) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
