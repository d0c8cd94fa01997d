// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/VVelox/meer/internal/brand"
	"github.com/VVelox/meer/internal/config"
	"github.com/VVelox/meer/internal/install"
)

// RunConfigInit writes a commented starter configuration.
func RunConfigInit(path string, force bool) error {
	if path == "" {
		path = install.DefaultConfigFile()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "sensor"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config directory: %w", err)
	}
	if err := os.WriteFile(path, config.DefaultConfigHCL(hostname), 0o640); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Edit it, then check it with: " + brand.BinaryName + " config check")
	return nil
}

// RunConfigCheck loads and validates a configuration file.
func RunConfigCheck(path string) error {
	if path == "" {
		path = install.DefaultConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("%s is valid\n", path)
	fmt.Printf("  input:    %s\n", cfg.Input.Type)
	fmt.Printf("  outputs:  %s\n", enabledOutputs(cfg))
	return nil
}

// RunConfigShow prints the configuration with defaults applied.
func RunConfigShow(path string) error {
	if path == "" {
		path = install.DefaultConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func enabledOutputs(cfg *config.Config) string {
	var on []string
	if cfg.SQL != nil && cfg.SQL.Enabled {
		on = append(on, "sql")
	}
	if cfg.Redis != nil && cfg.Redis.Enabled {
		on = append(on, "redis")
	}
	if cfg.Elasticsearch != nil && cfg.Elasticsearch.Enabled {
		on = append(on, "elasticsearch")
	}
	if cfg.Pipe != nil && cfg.Pipe.Enabled {
		on = append(on, "pipe")
	}
	if cfg.File != nil && cfg.File.Enabled {
		on = append(on, "file")
	}
	if cfg.External != nil && cfg.External.Enabled {
		on = append(on, "external")
	}
	if len(on) == 0 {
		return "none"
	}
	return strings.Join(on, ", ")
}
