package jsonutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID       string   `json:"id"`
	Severity string   `json:"severity"`
	Params   []string `json:"parameters"`
	Form     *struct {
		Name string `json:"name"`
	} `json:"form,omitempty"`
}

func TestMarshal_RoundTrip(t *testing.T) {
	in := record{ID: "a1", Severity: "high", Params: []string{"q"}}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a1","severity":"high","parameters":["q"]}`, string(data))

	var out record
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"a\": 1")
}

func TestUnmarshalLenient(t *testing.T) {
	var out record
	err := UnmarshalLenient([]byte(`{"ID":"x","SEVERITY":"low","extra":true}`), &out)
	require.NoError(t, err)
	assert.Equal(t, "x", out.ID)
	assert.Equal(t, "low", out.Severity)
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, record{ID: "b"}, false))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var out record
	require.NoError(t, Decode(strings.NewReader(strings.TrimSpace(buf.String())), &out))
	assert.Equal(t, "b", out.ID)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`{"ok":true}`)))
	assert.False(t, Valid([]byte(`{ok}`)))
}
