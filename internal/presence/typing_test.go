package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"murmur/internal/ident"
)

func TestTypingSetAndActive(t *testing.T) {
	typing := New(ekv.MakeMemstore(), time.Minute)
	conv := ident.New()
	other := ident.New()

	active, err := typing.Active(conv)
	require.NoError(t, err)
	require.Empty(t, active)

	require.NoError(t, typing.Set(conv, "alice"))
	require.NoError(t, typing.Set(conv, "bob"))
	require.NoError(t, typing.Set(other, "carol"))

	active, err = typing.Active(conv)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, active)

	active, err = typing.Active(other)
	require.NoError(t, err)
	require.Equal(t, []string{"carol"}, active)
}

func TestTypingExpiry(t *testing.T) {
	typing := New(ekv.MakeMemstore(), 20*time.Millisecond)
	conv := ident.New()

	require.NoError(t, typing.Set(conv, "alice"))

	active, err := typing.Active(conv)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, active)

	time.Sleep(30 * time.Millisecond)

	active, err = typing.Active(conv)
	require.NoError(t, err)
	require.Empty(t, active, "expired record is pruned on read")

	// renewal extends the window
	require.NoError(t, typing.Set(conv, "alice"))
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, typing.Set(conv, "alice"))
	time.Sleep(15 * time.Millisecond)

	active, err = typing.Active(conv)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, active)
}

func TestTypingZeroTTLDefaults(t *testing.T) {
	typing := New(ekv.MakeMemstore(), 0)
	require.Equal(t, DefaultTTL, typing.ttl)
}
