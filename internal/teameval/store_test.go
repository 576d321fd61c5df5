package teameval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/teameval/internal/db"
)

func TestSQLStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h, err := db.Open(ctx, db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	defer h.Close()
	st := NewSQLStore(h)

	_, err = st.Get(ctx, "e1")
	require.ErrorIs(t, err, ErrNotFound)

	deadline := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	minDL := deadline.Add(-24 * time.Hour)
	s := DefaultSettings()
	s.Deadline = &deadline
	s.Public = true
	ev := Evaluation{ID: "e1", Settings: s, MinimumDeadline: &minDL, CreatedAt: 1, UpdatedAt: 2}
	require.NoError(t, st.Put(ctx, ev))
	require.NoError(t, st.Put(ctx, Evaluation{ID: "e2", Settings: DefaultSettings(), CreatedAt: 1, UpdatedAt: 1}))

	got, err := st.Get(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, got.Settings.Deadline.Equal(deadline))
	assert.True(t, got.MinimumDeadline.Equal(minDL))
	assert.Equal(t, 0.5, got.Settings.Fraction)

	pub, err := st.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, "e1", pub[0].ID)

	require.NoError(t, st.Delete(ctx, "e1"))
	_, err = st.Get(ctx, "e1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReleases_SQLAndMemory(t *testing.T) {
	ctx := context.Background()
	h, err := db.Open(ctx, db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	defer h.Close()

	for name, rs := range map[string]ReleaseStore{"sql": NewSQLReleases(h), "memory": NewMemoryReleases()} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, rs.Add(ctx, "e1", Release{Level: LevelGroup, Target: "g", ReleasedAt: 10}))
			require.NoError(t, rs.Add(ctx, "e1", Release{Level: LevelUser, Target: "u", ReleasedAt: 11}))
			require.NoError(t, rs.Add(ctx, "e1", Release{Level: LevelGroup, Target: "g", ReleasedAt: 12}))

			list, err := rs.List(ctx, "e1")
			require.NoError(t, err)
			assert.Len(t, list, 2)

			c := Collect(list)
			assert.False(t, c.All)
			assert.True(t, c.Covers("anyone", "g"))
			assert.True(t, c.Covers("u", "other"))
			assert.False(t, c.Covers("v", "other"))

			require.NoError(t, rs.DeleteAll(ctx, "e1"))
			list, err = rs.List(ctx, "e1")
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

