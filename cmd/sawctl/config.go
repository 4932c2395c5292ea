package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// cliConfig carries the defaults a config file may provide. Command-line
// arguments still win over all of these.
type cliConfig struct {
	Display  string
	Quiet    bool
	LogLevel string
}

type fileConfig struct {
	Display  string `toml:"display"`
	Quiet    bool   `toml:"quiet"`
	LogLevel string `toml:"log_level"`
}

func loadCLIConfig(path string) (cliConfig, error) {
	var cfg cliConfig

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load sawctl config: %w", err)
	}

	if meta.IsDefined("display") {
		cfg.Display = strings.TrimSpace(raw.Display)
	}
	if meta.IsDefined("quiet") {
		cfg.Quiet = raw.Quiet
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}
