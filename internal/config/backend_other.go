//go:build !darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// xdgDir returns $env/mirror, or ~/fallback/mirror when env is unset.
func xdgDir(env string, fallback ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return appName + "-data"
		}
		dir = filepath.Join(append([]string{home}, fallback...)...)
	}
	return filepath.Join(dir, appName)
}

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "config.json"))
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func secretLocation() string {
	return fmt.Sprintf(`%s ({"%s": {"%s": "..."}})`, secretsFilePath(), appName, openAIKeyAccount)
}

func keychainGet(service, account string) ([]byte, error) {
	return readSecretsFile(secretsFilePath(), service, account)
}
