package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/pkg/logging"
)

func TestBootStateMissingFileStartsFromZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	b := LoadBootState(logging.Discard(), path)

	assert.Equal(t, int64(1), b.NextGuestID())
	assert.Equal(t, int64(1), b.NextMessageID())
}

func TestBootStateCorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	b := LoadBootState(logging.Discard(), path)
	assert.Equal(t, int64(1), b.NextGuestID())
	assert.Equal(t, int64(1), b.NextMessageID())
}

func TestBootStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	b := LoadBootState(logging.Discard(), path)
	b.Seed(41, 99)
	assert.Equal(t, int64(42), b.NextGuestID())
	assert.Equal(t, int64(100), b.NextMessageID())
	require.NoError(t, b.Save())

	reloaded := LoadBootState(logging.Discard(), path)
	assert.Equal(t, int64(43), reloaded.NextGuestID())
	assert.Equal(t, int64(101), reloaded.NextMessageID())
}

func TestGuestIDWrapsAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	b := LoadBootState(logging.Discard(), path)
	b.Seed(guestIDLimit, 0)
	assert.Equal(t, int64(1), b.NextGuestID())
}
