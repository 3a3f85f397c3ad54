package engine

import (
	"io"
	"testing"

	"github.com/dekarrin/gazelle/internal/gzlerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader hands out at most chunkSize bytes per Read call, forcing
// FileDriver through multiple read/compact cycles even for small inputs.
type chunkReader struct {
	data      []byte
	pos       int
	chunkSize int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := c.chunkSize
	if n > len(p) {
		n = len(p)
	}
	if rem := len(c.data) - c.pos; n > rem {
		n = rem
	}
	copy(p, c.data[c.pos:c.pos+n])
	c.pos += n
	var err error
	if c.pos >= len(c.data) {
		err = io.EOF
	}
	return n, err
}

func Test_ParseFile_CompletesOverMultipleSmallReads(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(identGrammar(), rec), Limits{})
	r := &chunkReader{data: []byte("abcdef"), chunkSize: 2}
	d := NewFileDriver(r, 8)

	status, err := ParseFile(ps, d)
	require.NoError(t, err)
	assert.Equal(t, DriverOK, status)
	assert.Equal(t, []string{"start_rule:S", "terminal:IDENT", "end_rule:S"}, rec.events)
}

func Test_ParseFile_HardEOFBeforeFileEOFIsStillOK(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(singleTerminalGrammar(), rec), Limits{})
	// The grammar concludes after a single "x"; a driver reading a longer
	// file must not treat unread trailing bytes as an error.
	r := &chunkReader{data: []byte("x"), chunkSize: 1}
	d := NewFileDriver(r, 8)

	status, err := ParseFile(ps, d)
	require.NoError(t, err)
	assert.Equal(t, DriverOK, status)
	assert.Equal(t, []string{"start_rule:S", "terminal:x", "end_rule:S"}, rec.events)
}

func Test_ParseFile_PrematureEOFWhenFileEndsMidLexeme(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(singleTerminalGrammar(), rec), Limits{})
	// The file ends with nothing at all consumed: S's only transition is on
	// "x", so hitting file-EOF at the very start leaves the RTN non-final.
	r := &chunkReader{data: []byte{}, chunkSize: 4}
	d := NewFileDriver(r, 8)

	status, err := ParseFile(ps, d)
	require.Error(t, err)
	assert.Equal(t, DriverPrematureEOF, status)

	kind, ok := gzlerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gzlerr.KindPrematureEOF, kind)
}

func Test_ParseFile_EmptyLanguageCompletesImmediately(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(emptyLanguageGrammar(), rec), Limits{})
	r := &chunkReader{data: []byte{}, chunkSize: 4}
	d := NewFileDriver(r, 8)

	status, err := ParseFile(ps, d)
	require.NoError(t, err)
	assert.Equal(t, DriverOK, status)
	assert.Equal(t, []string{"start_rule:S", "end_rule:S"}, rec.events)
}
