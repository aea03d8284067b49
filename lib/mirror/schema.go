package mirror

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ValentinKolb/dMirror/lib/persist"
	"gopkg.in/yaml.v3"
)

// Declaration is a named collection schema
type Declaration struct {
	Name   string
	Config persist.CollectionConfig
}

// Schema is the content of a schema file:
//
//	version: 2
//	collections:
//	  users:
//	    key: id
//	    unique: [email]
//	  orders:
//	    key: no
//	    autoIncrement: true
type Schema struct {
	Version     uint64                              `yaml:"version"`
	Collections map[string]persist.CollectionConfig `yaml:"collections"`
}

// Declarations returns the collections of the schema sorted by name
func (s *Schema) Declarations() []Declaration {
	out := make([]Declaration, 0, len(s.Collections))
	for name, cfg := range s.Collections {
		out = append(out, Declaration{Name: name, Config: cfg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseSchema reads a YAML schema. Unknown keys are rejected.
func ParseSchema(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Schema
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	for name, cfg := range s.Collections {
		if err := persist.ValidateConfig(name, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}
	return &s, nil
}

// DeclareAll declares every collection. It stops at the first error.
func (m *Mirror) DeclareAll(decls []Declaration) error {
	for _, d := range decls {
		if err := m.Declare(d.Name, d.Config); err != nil {
			return err
		}
	}
	return nil
}

// LoadSchema declares the collections of a YAML schema. A version in the schema
// replaces Options.Version.
func (m *Mirror) LoadSchema(r io.Reader) error {
	s, err := ParseSchema(r)
	if err != nil {
		return err
	}
	if err := m.DeclareAll(s.Declarations()); err != nil {
		return err
	}
	if s.Version > 0 {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.open {
			return ErrAlreadyOpen
		}
		m.opts.Version = s.Version
	}
	return nil
}

// LoadSchemaFile is LoadSchema for a file path
func (m *Mirror) LoadSchemaFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("mirror: failed to open schema file: %w", err)
	}
	defer f.Close()
	return m.LoadSchema(f)
}
