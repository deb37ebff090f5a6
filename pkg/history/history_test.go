package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

func record(id string, start time.Time, phase core.TaskPhase) *Record {
	return &Record{
		ID:         id,
		Intent:     "open chatgpt and ask " + id,
		Action:     "open_app",
		App:        "chatgpt",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Phase:      phase,
		Steps:      []string{"observe", "act", "verify"},
		Iterations: 2,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/archive")
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	want := record("a1", start, core.PhaseFailed)
	want.Error = "element not found"
	want.Category = core.ErrCategoryElement.String()
	require.NoError(t, store.Save(want))

	ok, err := afero.Exists(fs, filepath.Join("/archive", "a1.json"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get("a1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3*time.Second, got.Duration())
}

func TestStore_PhaseEncodedByName(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/archive")
	require.NoError(t, store.Save(record("p", time.Now().UTC(), core.PhaseCancelled)))

	data, err := afero.ReadFile(fs, "/archive/p.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cancelled"`)
}

func TestStore_ListSortedByStart(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/archive")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(record("late", base.Add(time.Hour), core.PhaseCompleted)))
	require.NoError(t, store.Save(record("early", base, core.PhaseCompleted)))
	require.NoError(t, store.Save(record("mid", base.Add(time.Minute), core.PhaseFailed)))
	require.NoError(t, afero.WriteFile(fs, "/archive/notes.txt", []byte("ignored"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/archive/broken.json", []byte("{"), 0o644))

	records, err := store.List()
	require.NoError(t, err)

	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"early", "mid", "late"}, ids)
}

func TestStore_ListMissingDir(t *testing.T) {
	records, err := NewStore(afero.NewMemMapFs(), "/nowhere").List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_SaveReplaces(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "/archive")
	r := record("x", time.Now().UTC(), core.PhaseActing)
	require.NoError(t, store.Save(r))

	r.Phase = core.PhaseCompleted
	r.Response = "done"
	require.NoError(t, store.Save(r))

	got, err := store.Get("x")
	require.NoError(t, err)
	assert.Equal(t, core.PhaseCompleted, got.Phase)
	assert.Equal(t, "done", got.Response)

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "/archive")

	assert.Error(t, store.Save(&Record{}))

	_, err := store.Get("missing")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/archive/bad.json", []byte("not json"), 0o644))
	_, err = store.Get("bad")
	assert.True(t, errors.Is(err, core.ErrParse))
}
