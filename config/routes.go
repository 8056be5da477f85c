package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoutesConfig points at an optional YAML route table replacing the built-in one.
type RoutesConfig struct {
	File string `env:"ROUTES_FILE"`
}

// Sanitize trims the path.
func (r *RoutesConfig) Sanitize() {
	r.File = strings.TrimSpace(r.File)
}

// RouteRule is one classification entry. Role is only meaningful for protected rules; empty
// means any signed-in role.
type RouteRule struct {
	Pattern string `yaml:"pattern"`
	Exact   bool   `yaml:"exact"`
	Role    string `yaml:"role"`
}

// RouteTable is the YAML document shape:
//
//	public:
//	  - pattern: /
//	    exact: true
//	  - pattern: /login
//	protected:
//	  - pattern: /app/admin
//	    role: admin
type RouteTable struct {
	Public    []RouteRule `yaml:"public"`
	Protected []RouteRule `yaml:"protected"`
}

// LoadRouteTable reads the table at path. An empty path returns (nil, nil).
func LoadRouteTable(path string) (*RouteTable, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open route table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return DecodeRouteTable(f)
}

// DecodeRouteTable parses a route table document. Unknown keys are rejected.
func DecodeRouteTable(r io.Reader) (*RouteTable, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var table RouteTable
	if err := dec.Decode(&table); err != nil {
		return nil, fmt.Errorf("decode route table: %w", err)
	}
	if len(table.Public) == 0 && len(table.Protected) == 0 {
		return nil, errors.New("route table is empty")
	}
	for i := range table.Public {
		if table.Public[i].Role != "" {
			return nil, fmt.Errorf("public rule %q cannot require a role", table.Public[i].Pattern)
		}
	}
	for i := range table.Protected {
		table.Protected[i].Role = strings.ToLower(strings.TrimSpace(table.Protected[i].Role))
	}
	return &table, nil
}
