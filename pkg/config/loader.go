package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kkyr/fig"
)

const (
	EnvPrefix = "WATCHPARTY"
	FileName  = "config.yaml"
)

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom directory of the configuration file.
// Reads and puts environment variables with the prefix WATCHPARTY_.
// Params from the config should be in uppercase separated with _.
// When no file is found, only defaults and the environment are used.
// Returns the path of the file that was loaded, if any.
func LoadConfig(config any, path string) (string, error) {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "pkg/config")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".watchparty"))
		}
	}
	err := fig.Load(config, fig.File(FileName), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) {
		return "", LoadConfigEnv(config)
	}
	if err != nil {
		return "", err
	}
	return locate(dirs), nil
}

func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}

// locate repeats the fig lookup order to find the loaded file.
func locate(dirs []string) string {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, FileName)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
