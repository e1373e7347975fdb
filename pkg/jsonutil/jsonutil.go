// Package jsonutil wraps github.com/go-json-experiment/json for the job
// store, reports, the daemon client and MCP results.
package jsonutil

import (
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Marshal returns the compact JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent returns v encoded with two-space indentation.
func MarshalIndent(v any) ([]byte, error) {
	return json.Marshal(v, jsontext.WithIndent("  "))
}

// Unmarshal decodes data into v. Object names must match exactly.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// UnmarshalLenient decodes JSON produced by systems we do not control:
// object names match case-insensitively and unknown members are ignored.
func UnmarshalLenient(data []byte, v any) error {
	return json.Unmarshal(data, v, json.MatchCaseInsensitiveNames(true))
}

// Encode writes v to w followed by a newline. When indent is set the output
// uses two-space indentation.
func Encode(w io.Writer, v any, indent bool) error {
	var err error
	if indent {
		err = json.MarshalWrite(w, v, jsontext.WithIndent("  "))
	} else {
		err = json.MarshalWrite(w, v)
	}
	if err != nil {
		return err
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

// Decode reads a single JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return json.UnmarshalRead(r, v)
}

// Valid reports whether data is well-formed JSON.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}
