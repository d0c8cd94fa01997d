// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package configdoc

import (
	"fmt"
	"strings"
)

// Markdown renders the block list as one reference document. Blocks
// appear in declaration order, which is also the order the starter
// config writes them in.
func Markdown(title, intro string, blocks []Block) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", title)
	if intro != "" {
		sb.WriteString(intro)
		sb.WriteString("\n\n")
	}

	var named []Block
	for _, b := range blocks {
		if b.Name == "" {
			if len(b.Fields) > 0 {
				sb.WriteString("## Top-level attributes\n\n")
				writeTable(&sb, b.Fields)
			}
			continue
		}
		named = append(named, b)
	}

	sb.WriteString("## Blocks\n\n")
	for _, b := range named {
		fmt.Fprintf(&sb, "- [`%s`](#%s)\n", b.Name, anchor(b.Name))
	}
	sb.WriteString("\n")

	for _, b := range named {
		fmt.Fprintf(&sb, "## %s\n\n", b.Name)
		if b.Doc != "" {
			sb.WriteString(b.Doc)
			sb.WriteString("\n\n")
		}
		writeTable(&sb, b.Fields)
	}

	return sb.String()
}

func writeTable(sb *strings.Builder, fields []Field) {
	sb.WriteString("| Attribute | Type | Default | Description |\n")
	sb.WriteString("|-----------|------|---------|-------------|\n")
	for _, f := range fields {
		def := f.Default
		if def == "" && f.Required {
			def = "*required*"
		}

		desc := f.Doc
		if len(f.Enum) > 0 {
			desc += " One of: " + codeList(f.Enum) + "."
		}
		if f.Example != "" {
			desc += " Example: `" + f.Example + "`."
		}

		fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n",
			f.Name, f.Type, escapeCell(def), escapeCell(strings.TrimSpace(desc)))
	}
	sb.WriteString("\n")
}

func codeList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "`" + s + "`"
	}
	return strings.Join(quoted, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func anchor(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", "-"))
}
