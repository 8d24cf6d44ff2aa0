package app

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDataDir returns the default data directory path.
// Uses ~/.imagehub for user installations, /var/lib/imagehub as fallback.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".imagehub")
	}
	return "/var/lib/imagehub"
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: imagehub.toml
// Search paths (in order): /etc/imagehub, ~/.config/imagehub, current directory
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("imagehub")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/imagehub")
		v.AddConfigPath("$HOME/.config/imagehub")
		v.AddConfigPath(".")
	}
}
