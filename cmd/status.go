// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/VVelox/meer/internal/brand"
	"github.com/VVelox/meer/internal/config"
	"github.com/VVelox/meer/internal/install"
)

const statusTimeout = 3 * time.Second

// RunStatus reports whether the bridge is running and, when the
// status API is enabled, prints its counters.
func RunStatus(configFile string) error {
	pid, running := readPIDFile(install.PIDFile())
	if !running {
		fmt.Printf("%s is not running\n", brand.LowerName)
		if pid != 0 {
			fmt.Printf("(stale PID file for PID %d)\n", pid)
		}
		os.Exit(1)
	}
	fmt.Printf("%s is running (PID: %d)\n", brand.LowerName, pid)

	if configFile == "" {
		configFile = install.DefaultConfigFile()
	}
	cfg, err := config.Load(configFile)
	if err != nil || cfg.API == nil || !cfg.API.Enabled {
		return nil
	}

	body, err := fetchStatus(cfg.API.Listen)
	if err != nil {
		fmt.Printf("status api at %s not reachable: %v\n", cfg.API.Listen, err)
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func fetchStatus(listen string) ([]byte, error) {
	client := &http.Client{Timeout: statusTimeout}
	resp, err := client.Get("http://" + listen + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
