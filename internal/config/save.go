package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ErrExists is returned by Save when the file is present and overwrite is
// false.
var ErrExists = errors.New("config file already exists")

// Save writes cfg as config.toml in dir, creating dir if needed, and
// returns the file path.
func Save(dir string, cfg Config, overwrite bool) (string, error) {
	if dir == "" {
		return "", errors.New("cannot save config: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	path := filepath.Join(dir, ConfigFile)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, ErrExists
		}
	}

	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}
	return path, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
