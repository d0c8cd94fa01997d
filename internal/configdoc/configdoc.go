// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package configdoc generates the meer.hcl reference from the config
// package source. It reads the HCL struct tags, the doc comments, and
// the annotation lines:
//
//	// @default: "info"
//	// @enum: debug, info, warn, error
//	// @example: "sensor-01.example.com"
package configdoc

import (
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strings"

	"github.com/VVelox/meer/internal/errors"
)

// Field is one HCL attribute.
type Field struct {
	Name     string
	GoName   string
	Type     string
	Doc      string
	Required bool
	Default  string
	Enum     []string
	Example  string
}

// Block is one HCL block, or the root attribute set when Name is "".
type Block struct {
	Name   string
	GoName string
	Doc    string
	Fields []Field
}

type parsedStruct struct {
	name   string
	doc    string
	fields []*ast.Field
}

// Parser extracts the config schema from Go source.
type Parser struct {
	fset    *token.FileSet
	structs map[string]*parsedStruct
}

func NewParser() *Parser {
	return &Parser{
		fset:    token.NewFileSet(),
		structs: make(map[string]*parsedStruct),
	}
}

// ParseDir reads every non-test Go file in dir and records the struct
// types that carry HCL tags.
func (p *Parser) ParseDir(dir string) error {
	pkgs, err := parser.ParseDir(p.fset, dir, nil, parser.ParseComments)
	if err != nil {
		return errors.Wrapf(err, errors.KindParse, "parsing %s", dir)
	}

	for name, pkg := range pkgs {
		if strings.HasSuffix(name, "_test") {
			continue
		}
		for _, file := range pkg.Files {
			p.collect(file)
		}
	}
	return nil
}

func (p *Parser) collect(file *ast.File) {
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok || genDecl.Tok != token.TYPE {
			continue
		}
		for _, spec := range genDecl.Specs {
			typeSpec, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			structType, ok := typeSpec.Type.(*ast.StructType)
			if !ok || structType.Fields == nil {
				continue
			}
			if !hasHCLTags(structType) {
				continue
			}
			p.structs[typeSpec.Name.Name] = &parsedStruct{
				name:   typeSpec.Name.Name,
				doc:    docText(genDecl.Doc),
				fields: structType.Fields.List,
			}
		}
	}
}

// Blocks resolves the schema starting from the named root struct. The
// first Block holds the root attributes; the rest follow the root's
// field order, one per hcl block tag.
func (p *Parser) Blocks(root string) ([]Block, error) {
	rootStruct, ok := p.structs[root]
	if !ok {
		return nil, errors.Errorf(errors.KindParse, "root struct %s not found", root)
	}

	top := Block{GoName: root, Doc: rootStruct.doc}
	blocks := []Block{top}

	for _, field := range rootStruct.fields {
		name, tag := hclTag(field)
		if name == "" {
			continue
		}
		if !tag.block {
			blocks[0].Fields = append(blocks[0].Fields, makeField(field, name, tag))
			continue
		}

		typeName := baseTypeName(field.Type)
		ps, ok := p.structs[typeName]
		if !ok {
			return nil, errors.Errorf(errors.KindParse, "block struct %s not found", typeName)
		}
		b := Block{Name: name, GoName: typeName, Doc: ps.doc}
		for _, f := range ps.fields {
			fname, ftag := hclTag(f)
			if fname == "" {
				continue
			}
			b.Fields = append(b.Fields, makeField(f, fname, ftag))
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

type tagInfo struct {
	optional bool
	block    bool
}

func hclTag(field *ast.Field) (string, tagInfo) {
	if field.Tag == nil || len(field.Names) == 0 {
		return "", tagInfo{}
	}
	raw := strings.Trim(field.Tag.Value, "`")
	tag := reflect.StructTag(raw).Get("hcl")
	if tag == "" {
		return "", tagInfo{}
	}

	parts := strings.Split(tag, ",")
	var ti tagInfo
	for _, part := range parts[1:] {
		switch part {
		case "optional":
			ti.optional = true
		case "block":
			ti.block = true
		}
	}
	return parts[0], ti
}

func makeField(field *ast.Field, name string, tag tagInfo) Field {
	doc := docText(field.Doc)

	f := Field{
		Name:     name,
		GoName:   field.Names[0].Name,
		Type:     hclType(field.Type),
		Required: !tag.optional && !tag.block,
	}

	var kept []string
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "@default:"):
			f.Default = strings.TrimSpace(strings.TrimPrefix(trimmed, "@default:"))
		case strings.HasPrefix(trimmed, "@enum:"):
			for _, e := range strings.Split(strings.TrimPrefix(trimmed, "@enum:"), ",") {
				f.Enum = append(f.Enum, strings.TrimSpace(e))
			}
		case strings.HasPrefix(trimmed, "@example:"):
			f.Example = strings.TrimSpace(strings.TrimPrefix(trimmed, "@example:"))
		case trimmed != "":
			kept = append(kept, trimmed)
		}
	}
	f.Doc = strings.Join(kept, " ")
	return f
}

// hclType renders the Go type the way an operator sees it in HCL.
func hclType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		switch t.Name {
		case "string":
			return "string"
		case "bool":
			return "bool"
		case "int", "int64", "float64":
			return "number"
		default:
			return t.Name
		}
	case *ast.StarExpr:
		return hclType(t.X)
	case *ast.ArrayType:
		return "list(" + hclType(t.Elt) + ")"
	case *ast.MapType:
		return "map(" + hclType(t.Value) + ")"
	case *ast.SelectorExpr:
		return t.Sel.Name
	default:
		return "any"
	}
}

// baseTypeName unwraps pointers down to the named type.
func baseTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return baseTypeName(t.X)
	default:
		return ""
	}
}

func docText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return strings.TrimSpace(cg.Text())
}

func hasHCLTags(s *ast.StructType) bool {
	for _, field := range s.Fields.List {
		if field.Tag != nil && strings.Contains(field.Tag.Value, "hcl:") {
			return true
		}
	}
	return false
}
