package keyring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyringPutGet(t *testing.T) {
	k := New(time.Minute)
	defer k.Close()

	k.Put("session-1", []byte{1, 2, 3})

	got, ok := k.Get("session-1")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)

	_, ok = k.Get("session-2")
	assert.False(t, ok)
}

func TestKeyringPutCopies(t *testing.T) {
	k := New(time.Minute)
	defer k.Close()

	original := []byte{1, 2, 3}
	k.Put("s", original)
	original[0] = 99

	got, ok := k.Get("s")
	require.True(t, ok)
	assert.Equal(t, byte(1), got[0])
}

func TestKeyringClearWipes(t *testing.T) {
	k := New(time.Minute)
	defer k.Close()

	k.Put("s", []byte{1, 2, 3})
	stored, ok := k.Get("s")
	require.True(t, ok)

	k.Clear("s")

	_, ok = k.Get("s")
	assert.False(t, ok)
	// eviction hook must have zeroed the stored copy
	assert.Equal(t, []byte{0, 0, 0}, stored)
}

func TestKeyringCloseWipesAll(t *testing.T) {
	k := New(time.Minute)

	k.Put("a", []byte{1})
	k.Put("b", []byte{2})
	a, _ := k.Get("a")
	b, _ := k.Get("b")

	k.Close()

	assert.Equal(t, []byte{0}, a)
	assert.Equal(t, []byte{0}, b)
}
