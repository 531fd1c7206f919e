package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state.json"))
}

func TestRoundTripAllStates(t *testing.T) {
	started := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	scanned := started.Add(time.Hour)

	states := []MachineState{
		DefaultState(),
		{
			Status:        StatusPlaying,
			CurrentGame:   "Street Fighter II",
			GameStartedAt: &started,
			LastUpdatedAt: started,
			CollectionStats: CollectionStats{
				TotalGames:  412,
				Favorites:   17,
				KidFriendly: 40,
				LastScanAt:  &scanned,
				PerSystemCounts: map[string]Counts{
					"snes":   {Games: 210, Favorites: 11, KidFriendly: 25},
					"arcade": {Games: 202, Favorites: 6, KidFriendly: 15},
				},
			},
		},
		{Status: StatusShutdown, LastUpdatedAt: started},
	}

	for _, st := range states {
		store := tempStore(t)
		require.NoError(t, store.Save(st))

		fresh := NewStore(store.Path())
		loaded, err := fresh.Load()
		require.NoError(t, err)
		require.Equal(t, st, loaded)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	st, err := tempStore(t).Load()
	require.NoError(t, err)
	require.Equal(t, DefaultState(), st)
}

func TestLoadCorruptFileFails(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{status: playing"), 0o644))

	_, err := store.Load()
	require.Error(t, err)

	_, err = store.LoadWithRetry(3, time.Millisecond)
	require.Error(t, err)
}

func TestLoadWithRetrySucceedsOnceFileIsValid(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(MachineState{Status: StatusIdle}))

	st, err := store.LoadWithRetry(3, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, StatusIdle, st.Status)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(DefaultState()))

	_, err := os.Stat(store.Path() + ".tmp")
	require.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.True(t, json.Valid(data))
}

func TestManagerPersistsEveryApply(t *testing.T) {
	store := tempStore(t)
	mgr := NewManager(store, nil)

	readStatus := func() Status {
		st, err := NewStore(store.Path()).Load()
		require.NoError(t, err)
		return st.Status
	}

	_, err := mgr.Apply(Event{Name: EventGameStart, Args: map[string]string{"rom_path": "/roms/nes/metroid.nes"}})
	require.NoError(t, err)
	require.Equal(t, StatusPlaying, readStatus())

	_, err = mgr.Apply(Event{Name: EventGameEnd})
	require.NoError(t, err)
	require.Equal(t, StatusIdle, readStatus())

	// Malformed events persist too; the write is unconditional.
	_, err = mgr.Apply(Event{Name: "bogus"})
	require.NoError(t, err)
	require.Equal(t, StatusIdle, readStatus())
}

func TestManagerStartsFromDefaultsOnCorruptFile(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("not json"), 0o644))

	mgr := NewManager(store, nil)
	require.Equal(t, StatusIdle, mgr.Snapshot().Status)
}

func TestManagerUpdateCollectionStats(t *testing.T) {
	store := tempStore(t)
	mgr := NewManager(store, nil)

	scanned := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	stats := CollectionStats{
		TotalGames:      7,
		Favorites:       2,
		KidFriendly:     1,
		LastScanAt:      &scanned,
		PerSystemCounts: map[string]Counts{"gba": {Games: 7, Favorites: 2, KidFriendly: 1}},
	}
	require.NoError(t, mgr.UpdateCollectionStats(stats))

	loaded, err := NewStore(store.Path()).Load()
	require.NoError(t, err)
	require.Equal(t, stats, loaded.CollectionStats)
	require.Equal(t, 7, mgr.Snapshot().CollectionStats.TotalGames)
}
