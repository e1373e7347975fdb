package iohelper

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingCloser struct {
	io.Reader
	closed bool
}

func (t *trackingCloser) Close() error {
	t.closed = true
	return nil
}

func TestReadBody_NilReader(t *testing.T) {
	body, err := ReadBody(nil, PageMaxBodySize)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestReadBody_RespectsLimit(t *testing.T) {
	body, err := ReadBody(strings.NewReader(strings.Repeat("x", 1000)), 100)
	require.NoError(t, err)
	assert.Len(t, body, 100)
}

func TestReadAndClose(t *testing.T) {
	rc := &trackingCloser{Reader: strings.NewReader("<html>hello</html> and more")}

	body, err := ReadAndClose(rc, 18)
	require.NoError(t, err)
	assert.Equal(t, "<html>hello</html>", string(body))
	assert.True(t, rc.closed)
}

func TestReadAndClose_Nil(t *testing.T) {
	body, err := ReadAndClose(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestDrainAndClose(t *testing.T) {
	rc := &trackingCloser{Reader: strings.NewReader(strings.Repeat("y", 4096))}
	DrainAndClose(rc)
	assert.True(t, rc.closed)

	DrainAndClose(nil)
}
