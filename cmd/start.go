// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/VVelox/meer/internal/brand"
	"github.com/VVelox/meer/internal/config"
	"github.com/VVelox/meer/internal/install"
)

// RunStart launches the bridge in the background and confirms it
// survived its first half second.
func RunStart(configFile string) error {
	if configFile == "" {
		configFile = install.DefaultConfigFile()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s\n\n"+
			"To create one, run:\n"+
			"  %s config init", configFile, brand.BinaryName)
	}

	// Validate before forking so config errors land on the user's
	// terminal instead of in the daemon log.
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	pidFile := install.PIDFile()
	if pid, running := readPIDFile(pidFile); running {
		return fmt.Errorf("process already running (PID: %d)", pid)
	} else if pid != 0 {
		fmt.Printf("Warning: removing stale PID file %s\n", pidFile)
		os.Remove(pidFile)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	logDir := install.GetLogDir()
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile := filepath.Join(logDir, brand.LowerName+".log")

	logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logF.Close()

	child := exec.Command(exe, "run", "-config", configFile)
	child.Stdout = logF
	child.Stderr = logF
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	pid := child.Process.Pid
	fmt.Printf("Started %s (PID: %d)\n", brand.Name, pid)
	fmt.Printf("Logs: %s\n", logFile)

	// A daemon that dies inside the first window is a startup
	// failure worth reporting inline.
	done := make(chan error, 1)
	go func() {
		done <- child.Wait()
	}()

	select {
	case err := <-done:
		fmt.Fprintf(os.Stderr, "\nError: daemon exited immediately.\n")
		if content, readErr := os.ReadFile(logFile); readErr == nil {
			lines := strings.Split(string(content), "\n")
			start := len(lines) - 10
			if start < 0 {
				start = 0
			}
			fmt.Fprintf(os.Stderr, "Log output:\n")
			for _, line := range lines[start:] {
				if line != "" {
					fmt.Fprintf(os.Stderr, "  %s\n", line)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("daemon failed to start: %w", err)
		}
		return fmt.Errorf("daemon exited unexpectedly")

	case <-time.After(500 * time.Millisecond):
		if err := child.Process.Signal(syscall.Signal(0)); err != nil {
			return fmt.Errorf("daemon died during startup (check logs: %s)", logFile)
		}
		return nil
	}
}

// readPIDFile reads path and reports whether that process is alive.
// A pid of 0 means no usable PID file exists.
func readPIDFile(path string) (pid int, running bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	// Signal 0 probes for existence without touching the process.
	return pid, process.Signal(syscall.Signal(0)) == nil
}
