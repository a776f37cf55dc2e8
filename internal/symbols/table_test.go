package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupAndFreeze(t *testing.T) {
	tbl := New(map[string]Address{Malloc: 0x1000})
	addr, ok := tbl.Lookup(Malloc)
	require.True(t, ok)
	assert.Equal(t, Address(0x1000), addr)

	_, ok = tbl.Lookup(Free)
	assert.False(t, ok)

	tbl.Register(Free, 0x2000)
	tbl.Freeze()

	assert.Panics(t, func() { tbl.Register("late", 0x3000) })
}

func TestMustLookupPanicsOnMiss(t *testing.T) {
	tbl := New(nil)
	assert.Panics(t, func() { tbl.MustLookup("nope") })
}
