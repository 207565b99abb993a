package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a default configuration file at the default location.
//
// Returns the path of the created file. If a config file already exists
// and force is false, an error is returned rather than overwriting it.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("configuration file already exists: %s\n\n"+
				"Use --force to overwrite it", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to marshal default config: %w", err)
	}

	content := append([]byte(configHeader), data...)
	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

const configHeader = `# fsx Configuration File
#
# Values can be overridden with FSX_* environment variables, for example
# FSX_LOGGING_LEVEL=DEBUG or FSX_WATCH_SERVER_PORT=9000.
#
# Sizes accept human-readable suffixes ("1Gi", "500Mi", "100MB") and
# durations accept Go syntax ("30s", "5m", "1h").

`
