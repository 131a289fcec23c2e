package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubegrade/tubegrade/model"
)

func saveRun(t *testing.T, root, id string, ts time.Time) {
	t.Helper()
	h := model.History{ID: id, Timestamp: ts, ExitCode: 1}
	require.NoError(t, Save(RunDir(root, h), h))
}

func TestLoadEntries(t *testing.T) {
	root := filepath.Join(t.TempDir(), DirName)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	saveRun(t, root, "aaaaaaaa-1111", base)
	saveRun(t, root, "bbbbbbbb-2222", base.Add(2*time.Hour))
	saveRun(t, root, "cccccccc-3333", base.Add(time.Hour))

	broken := filepath.Join(root, "history", "broken")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "history.json"), []byte("{"), 0o644))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "bbbbbbbb-2222", entries[0].History.ID)
	assert.Equal(t, "cccccccc-3333", entries[1].History.ID)
	assert.Equal(t, "aaaaaaaa-1111", entries[2].History.ID)
	assert.Equal(t, filepath.Join(root, "history", "20250301-140000-bbbbbbbb"), entries[0].FullPath)
}

func TestLoadEntries_MissingRoot(t *testing.T) {
	entries, err := LoadEntries(zerolog.Nop(), filepath.Join(t.TempDir(), DirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSelect(t *testing.T) {
	entries := []Entry{
		{History: model.History{ID: "ab12cd34"}},
		{History: model.History{ID: "ef56ab78"}},
		{History: model.History{ID: "ab99ff00"}},
	}

	tests := []struct {
		name    string
		arg     string
		wantID  string
		wantErr string
	}{
		{name: "newest", arg: "0", wantID: "ab12cd34"},
		{name: "previous", arg: "-1", wantID: "ef56ab78"},
		{name: "oldest", arg: "-2", wantID: "ab99ff00"},
		{name: "out of range", arg: "-3", wantErr: "out of range"},
		{name: "positive", arg: "1", wantErr: "invalid index"},
		{name: "prefix", arg: "EF5", wantID: "ef56ab78"},
		{name: "first prefix match", arg: "ab", wantID: "ab12cd34"},
		{name: "unknown prefix", arg: "zz", wantErr: "no history entry found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Select(entries, tt.arg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, e.History.ID)
		})
	}

	_, err := Select(nil, "0")
	require.ErrorIs(t, err, ErrNoEntries)
}
