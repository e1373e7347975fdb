package payloads

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// Tamper scripts run in a sandbox with no file, network or OS access.
var tamperModules = stdlib.GetModuleMap("text", "fmt", "math")

const tamperMaxAllocs = 5_000_000

// Tamper is a compiled Tengo script that rewrites payload strings. A script
// defines transform(payload) and optionally a name:
//
//	text := import("text")
//	name := "space2comment"
//	transform := func(p) { return text.replace(p, " ", "/**/", -1) }
type Tamper struct {
	name     string
	compiled *tengo.Compiled
}

// CompileTamper compiles src. fallbackName is used when the script does not
// set name.
func CompileTamper(fallbackName string, src []byte) (*Tamper, error) {
	probe := tengo.NewScript(src)
	probe.SetImports(tamperModules)
	probe.SetMaxAllocs(tamperMaxAllocs)
	meta, err := probe.Run()
	if err != nil {
		return nil, fmt.Errorf("tamper %s: %w", fallbackName, err)
	}
	if meta.Get("transform").IsUndefined() {
		return nil, fmt.Errorf("tamper %s: %w", fallbackName, ErrMissingTransform)
	}
	name := fallbackName
	if v := meta.Get("name"); !v.IsUndefined() && v.String() != "" {
		name = v.String()
	}

	wrapped := append(append([]byte{}, src...), "\n__out__ := transform(__in__)\n"...)
	script := tengo.NewScript(wrapped)
	script.SetImports(tamperModules)
	script.SetMaxAllocs(tamperMaxAllocs)
	if err := script.Add("__in__", ""); err != nil {
		return nil, err
	}
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("tamper %s: %w", name, err)
	}
	return &Tamper{name: name, compiled: compiled}, nil
}

// LoadTamper compiles the script at path.
func LoadTamper(path string) (*Tamper, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tamper: read %s: %w", path, err)
	}
	return CompileTamper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), src)
}

// Name returns the tamper's name.
func (t *Tamper) Name() string {
	return t.name
}

// Apply runs transform on value. Each call works on its own clone of the
// compiled script.
func (t *Tamper) Apply(value string) (string, error) {
	c := t.compiled.Clone()
	if err := c.Set("__in__", value); err != nil {
		return "", err
	}
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("tamper %s: %w", t.name, err)
	}
	out := c.Get("__out__")
	if out.IsUndefined() {
		return "", nil
	}
	return out.String(), nil
}
