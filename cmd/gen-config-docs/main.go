// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// gen-config-docs renders the meer.hcl reference from the config
// struct definitions.
//
// Usage:
//
//	go run ./cmd/gen-config-docs -output=docs/configuration.md
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/VVelox/meer/internal/configdoc"
)

const intro = "Every attribute the bridge reads from its HCL configuration, " +
	"in the order the blocks appear in a generated starter file. " +
	"Unlisted blocks do not exist; unknown attributes are load errors."

func main() {
	output := flag.String("output", "", "Output file (default: stdout)")
	configDir := flag.String("config-dir", "internal/config", "Directory containing config Go files")
	flag.Parse()

	parser := configdoc.NewParser()
	if err := parser.ParseDir(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing config directory: %v\n", err)
		os.Exit(1)
	}

	blocks, err := parser.Blocks("Config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving schema: %v\n", err)
		os.Exit(1)
	}

	content := configdoc.Markdown("meer.hcl reference", intro, blocks)
	writeOutput(*output, content)
}

func writeOutput(path, content string) {
	if path == "" {
		fmt.Print(content)
		return
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
			os.Exit(1)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", path)
}
