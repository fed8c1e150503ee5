package tripwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeUnitLineTable(t *testing.T) {
	src := "func add(a, b)\n  total = a + b\n  return total\n"
	u := NewCodeUnit("add", src, 5)

	require.Len(t, u.Lines(), 3)
	assert.Equal(t, 5, u.StartLine())
	assert.Equal(t, src, u.Source())

	// Line text is indentation-stripped.
	text, ok := u.LineText(6)
	require.True(t, ok)
	assert.Equal(t, "total = a + b", text)

	assert.True(t, u.HasLine(5))
	assert.True(t, u.HasLine(7))
	assert.False(t, u.HasLine(4))
	assert.False(t, u.HasLine(8))

	_, ok = u.LineText(8)
	assert.False(t, ok)
}

func TestCodeUnitBindings(t *testing.T) {
	u := NewCodeUnit("f", "func f(x)\n  y = x\n", 1)

	assert.Nil(t, u.Bindings(), "bindings are nil until declared")

	u.DeclareBindings("y", "x")
	u.DeclareBindings("x") // duplicate
	assert.Equal(t, []string{"x", "y"}, u.Bindings())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("func f()\n  return 1\n")
	b := Fingerprint("func f()\n  return 2\n")

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Fingerprint("func f()\n  return 1\n"))

	u := NewCodeUnit("f", "func f()\n  return 1\n", 1)
	assert.Equal(t, a, u.Fingerprint())
}
