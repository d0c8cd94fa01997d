// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package install resolves the directories the bridge reads and writes
// at runtime. Environment overrides beat build-time overrides beat the
// branded defaults.
package install

import (
	"os"
	"path/filepath"

	"github.com/VVelox/meer/internal/brand"
)

var (
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultRunDir    string

	// Build-time path overrides, set via -ldflags so packagers can
	// relocate without patching.
	BuildDefaultConfigDir = ""
	BuildDefaultStateDir  = ""
	BuildDefaultLogDir    = ""
	BuildDefaultRunDir    = ""
)

func init() {
	b := brand.Get()

	DefaultConfigDir = pick(BuildDefaultConfigDir, b.DefaultConfigDir)
	DefaultStateDir = pick(BuildDefaultStateDir, b.DefaultStateDir)
	DefaultLogDir = pick(BuildDefaultLogDir, b.DefaultLogDir)
	DefaultRunDir = pick(BuildDefaultRunDir, b.DefaultRunDir)
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

func fromEnv(suffix, subdir, fallback string) string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + suffix); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, subdir)
	}
	return fallback
}

// GetConfigDir returns the config directory.
// Priority: MEER_CONFIG_DIR > MEER_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	return fromEnv("_CONFIG_DIR", "config", DefaultConfigDir)
}

// GetStateDir returns the state directory holding the waldo file and
// the sqlite database.
// Priority: MEER_STATE_DIR > MEER_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	return fromEnv("_STATE_DIR", "state", DefaultStateDir)
}

// GetLogDir returns the log directory.
// Priority: MEER_LOG_DIR > MEER_PREFIX/log > DefaultLogDir
func GetLogDir() string {
	return fromEnv("_LOG_DIR", "log", DefaultLogDir)
}

// GetRunDir returns the runtime directory for sockets and PID files.
// Priority: MEER_RUN_DIR > MEER_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	return fromEnv("_RUN_DIR", "run", DefaultRunDir)
}

// DefaultConfigFile returns the branded config file path.
func DefaultConfigFile() string {
	return filepath.Join(GetConfigDir(), brand.ConfigFileName)
}

// PIDFile returns the daemon PID file path.
func PIDFile() string {
	return filepath.Join(GetRunDir(), brand.LowerName+".pid")
}
