package payloads

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a payload file:
//
//	payloads:
//	  - category: reflected-xss
//	    value: "<script>alert(1)</script>"
//	    description: Classic script tag
type File struct {
	Payloads []Payload `yaml:"payloads"`
}

// Parse builds a library from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Library, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("payloads: decode: %w", err)
	}
	return New(f.Payloads...)
}

// Load reads a YAML payload file.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("payloads: read %s: %w", path, err)
	}
	lib, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}
