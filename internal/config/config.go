package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the optional bale configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. A nil field was not set in
// the file.
type DefaultsConfig struct {
	Kind          *string  `toml:"kind"`
	Level         *int     `toml:"level"`
	Threads       *int     `toml:"threads"`
	Cipher        *string  `toml:"cipher"`
	Hashes        []string `toml:"hashes"`
	Envelope      *string  `toml:"envelope"`
	DateFormat    *string  `toml:"date_format"`
	Destination   *string  `toml:"destination"`
	Encrypt       *bool    `toml:"encrypt"`
	SortBySize    *bool    `toml:"sort_by_size"`
	StateFile     *string  `toml:"state_file"`
	BWLimit       *string  `toml:"bwlimit"`
	AgeWorkFactor *int     `toml:"age_work_factor"`
	Exclude       []string `toml:"exclude"`
	FilterFile    *string  `toml:"filter_file"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "bale", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file is not an error.
// Keys bale does not know are reported in the returned error so typos in
// the file do not go unnoticed.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, &UnknownKeysError{Path: path, Keys: keyStrings(undecoded)}
	}
	return cfg, nil
}

// UnknownKeysError lists keys present in the file that bale ignores.
type UnknownKeysError struct {
	Path string
	Keys []string
}

func (e *UnknownKeysError) Error() string {
	return e.Path + ": unknown keys: " + strings.Join(e.Keys, ", ")
}

func keyStrings(keys []toml.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// Encode renders cfg as TOML, omitting unset fields.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
