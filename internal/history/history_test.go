package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Record(ctx, []string{"host1", "host2"}))
	require.NoError(t, s.Record(ctx, []string{"host3"}))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, []string{"host3"}, entries[0].Hosts, "newest first")
	assert.Equal(t, []string{"host1", "host2"}, entries[1].Hosts)
	assert.False(t, entries[0].StartedAt.IsZero())
}

func TestRecentHonorsLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, host := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, []string{host}))
	}

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecordRejectsEmptyHostList(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.Record(context.Background(), nil))
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
