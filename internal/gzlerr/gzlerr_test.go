package gzlerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_New_CarriesKindAndMessage(t *testing.T) {
	err := New(KindSyntactic, "unexpected token")
	assert.Equal(t, "unexpected token", err.Error())
	k, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindSyntactic, k)
}

func Test_Wrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(cause, KindIO, "")

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "disk on fire", err.Error())
}

func Test_WithHuman_SetsHumanMessage(t *testing.T) {
	err := WithHuman(New(KindCorruptGrammar, "bad magic prefix"), "that grammar file looks corrupted")

	var e *Error
	require := assert.New(t)
	require.True(errors.As(err, &e))
	require.Equal("that grammar file looks corrupted", e.HumanMessage())
}

func Test_Is_MatchesWrappedKind(t *testing.T) {
	err := fmtWrapped()
	assert.True(t, Is(err, KindResourceLimit))
	assert.False(t, Is(err, KindLexical))
}

func fmtWrapped() error {
	return Wrapf(New(KindResourceLimit, "stack too deep"), KindResourceLimit, "parse failed: %s", "stack too deep")
}
