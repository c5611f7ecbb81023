// Package env composes the environment the server is launched with.
package env

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

type Var map[string]string

// Env is a base environment with layers applied on top; later layers win.
type Env struct {
	base   Var
	layers []Var
}

// New starts from base, a list of "K=V" pairs. Entries without '=' or with
// an empty key are dropped.
func New(base []string) *Env {
	return &Env{base: parsePairs(base)}
}

// FromOS starts from the manager's own environment.
func FromOS() *Env { return New(os.Environ()) }

// Apply adds vars as a new layer.
func (e *Env) Apply(vars map[string]string) *Env {
	l := make(Var, len(vars))
	for k, v := range vars {
		if k != "" {
			l[k] = v
		}
	}
	e.layers = append(e.layers, l)
	return e
}

// ApplyFile adds the variables of a .env file as a new layer.
func (e *Env) ApplyFile(path string) error {
	vars, err := ParseFile(path)
	if err != nil {
		return err
	}
	e.Apply(vars)
	return nil
}

// Lookup returns the merged, unexpanded value of k.
func (e *Env) Lookup(k string) (string, bool) {
	for i := len(e.layers) - 1; i >= 0; i-- {
		if v, ok := e.layers[i][k]; ok {
			return v, true
		}
	}
	v, ok := e.base[k]
	return v, ok
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Environ returns the merged environment as sorted "K=V" pairs. ${VAR}
// references in a layer are expanded against the environment beneath that
// layer, so PATH=/opt/bin:${PATH} extends the inherited PATH. Unknown
// references are left in place and base values are passed through untouched.
func (e *Env) Environ() []string {
	merged := make(Var, len(e.base))
	for k, v := range e.base {
		merged[k] = v
	}
	for _, l := range e.layers {
		next := make(Var, len(l))
		for k, v := range l {
			next[k] = expand(v, merged)
		}
		for k, v := range next {
			merged[k] = v
		}
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	return placeholder.ReplaceAllStringFunc(s, func(ref string) string {
		if v, ok := m[ref[2:len(ref)-1]]; ok {
			return v
		}
		return ref
	})
}

// ParseFile reads a .env file of KEY=VALUE lines. Blank lines and lines
// starting with # are ignored; an "export " prefix and matching surrounding
// quotes are stripped.
func ParseFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" {
			continue
		}
		m[k] = unquote(v)
	}
	return m, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func parsePairs(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			m[k] = v
		}
	}
	return m
}
