// Package loader reads the row files fed to batch inserts and updates.
//
// A file is YAML or JSON holding either a bare list of rows or a document:
//
//	table: empresa
//	rows:
//	  - empresa: Agro Sur
//	    empresabrev: AGS
//	    paisid: 1
//	updates:
//	  - id: 4
//	    row: {empresabrev: AGR}
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thermos-iot/thermos-console/pkg/schema"
)

// ErrEmpty is returned when a file holds no rows and no updates.
var ErrEmpty = errors.New("no rows found")

// Update is a row change addressed by primary key.
type Update struct {
	ID  int64      `yaml:"id" json:"id"`
	Row schema.Row `yaml:"row" json:"row"`
}

// Document is the content of one row file.
type Document struct {
	Path    string       `yaml:"-" json:"-"`
	Table   string       `yaml:"table" json:"table,omitempty"`
	Rows    []schema.Row `yaml:"rows" json:"rows,omitempty"`
	Updates []Update     `yaml:"updates" json:"updates,omitempty"`
}

// Parse decodes a row file.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse rows: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, ErrEmpty
	}

	doc := &Document{}
	switch node := root.Content[0]; node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&doc.Rows); err != nil {
			return nil, fmt.Errorf("failed to decode rows: %w", err)
		}
	case yaml.MappingNode:
		if err := node.Decode(doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	default:
		return nil, fmt.Errorf("expected a list of rows or a document, got %s", describe(node))
	}

	for i, row := range doc.Rows {
		if row == nil {
			return nil, fmt.Errorf("row %d is empty", i+1)
		}
	}
	for i, u := range doc.Updates {
		if u.ID <= 0 {
			return nil, fmt.Errorf("update %d has no id", i+1)
		}
		if len(u.Row) == 0 {
			return nil, fmt.Errorf("update %d has no changes", i+1)
		}
	}
	if len(doc.Rows) == 0 && len(doc.Updates) == 0 {
		return nil, ErrEmpty
	}

	return doc, nil
}

func describe(node *yaml.Node) string {
	if node.Kind == yaml.ScalarNode {
		return "a scalar value"
	}
	return "an alias"
}

// LoadFile reads and parses one row file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// LoadPath reads a row file or every .yaml, .yml and .json file under a
// directory, in lexical order.
func LoadPath(path string) ([]*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if !info.IsDir() {
		doc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []*Document{doc}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isRowFile(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no row files found in %s", path)
	}
	slices.Sort(files)

	docs := make([]*Document, 0, len(files))
	for _, file := range files {
		doc, err := LoadFile(file)
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func isRowFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
