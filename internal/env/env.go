// Package env composes the child's environment from the wrapper's own
// environment and configured overrides.
package env

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
)

// Var maps names to values.
type Var map[string]string

// Env holds a base environment and ordered overrides.
type Env struct {
	base      Var
	overrides []string
}

// FromOS returns an Env based on the current process environment.
func FromOS() *Env { return New(os.Environ()) }

// New returns an Env whose base is the given K=V list.
func New(base []string) *Env {
	m := make(Var, len(base))
	for _, kv := range base {
		if k, v, ok := split(kv); ok {
			m[canon(k)] = v
		}
	}
	return &Env{base: m}
}

// With returns a copy of e with overrides appended. Later entries win.
func (e *Env) With(overrides ...string) *Env {
	out := &Env{base: e.base, overrides: make([]string, 0, len(e.overrides)+len(overrides))}
	out.overrides = append(out.overrides, e.overrides...)
	out.overrides = append(out.overrides, overrides...)
	return out
}

// Validate rejects override entries that are not K=V.
func Validate(overrides []string) error {
	for _, kv := range overrides {
		if _, _, ok := split(kv); !ok {
			return fmt.Errorf("invalid environment entry %q, want KEY=VALUE", kv)
		}
	}
	return nil
}

// Merge returns the sorted K=V list. Override values may reference other
// variables as ${NAME}; references resolve against the base and earlier
// overrides, so an override can extend a base value such as PATH.
func (e *Env) Merge() []string {
	m := make(Var, len(e.base)+len(e.overrides))
	for k, v := range e.base {
		m[k] = v
	}
	for _, kv := range e.overrides {
		k, v, ok := split(kv)
		if !ok {
			continue
		}
		m[canon(k)] = os.Expand(v, func(name string) string {
			if name == "$" {
				return "$"
			}
			return m[canon(name)]
		})
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func split(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", false
	}
	return k, v, true
}

// canon folds names on Windows where the environment is case-insensitive.
func canon(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}
