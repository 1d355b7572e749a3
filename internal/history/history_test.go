// SPDX-License-Identifier: MIT

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Latest_Empty(t *testing.T) {
	s := openStore(t)
	_, err := s.Latest(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"updated", "unchanged", "failed"} {
		require.NoError(t, s.Record(ctx, Entry{
			ID:         outcome,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Second),
			Outcome:    outcome,
			SourceURL:  "https://mirror.example/epg.xml",
			Tier:       "primary",
			Attempts:   i + 1,
			Programmes: 10 * i,
		}))
	}

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "failed", latest.Outcome)
	assert.Equal(t, 3, latest.Attempts)
	assert.Equal(t, base.Add(2*time.Hour), latest.StartedAt)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "failed", recent[0].ID)
	assert.Equal(t, "unchanged", recent[1].ID)

	none, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_RecordReplacesSameID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.Record(ctx, Entry{ID: "run", StartedAt: now, FinishedAt: now, Outcome: "failed"}))
	require.NoError(t, s.Record(ctx, Entry{ID: "run", StartedAt: now, FinishedAt: now, Outcome: "updated", Checksum: "abc"}))

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "updated", recent[0].Outcome)
	assert.Equal(t, "abc", recent[0].Checksum)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.sqlite")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, Entry{ID: "a", StartedAt: time.Now(), FinishedAt: time.Now(), Outcome: "updated"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", latest.ID)
}
