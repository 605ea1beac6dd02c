package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBoard(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFileSource_ArrayAndObject(t *testing.T) {
	arr := writeBoard(t, `[{"id":"1","subject":"build: api","status":"completed","updated_at":"2026-01-02T10:00:00Z"}]`)
	obj := writeBoard(t, `{"tasks":[{"id":"1","subject":"build: api","status":"completed","updated_at":"2026-01-02T10:00:00Z"}]}`)

	for _, path := range []string{arr, obj} {
		got, err := NewFileSource(path).List(context.Background(), Filter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, StatusCompleted, got[0].Status)
		assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), got[0].UpdatedAt.UTC())
	}
}

func TestFileSource_DefaultsAndRejectsStatus(t *testing.T) {
	ok := writeBoard(t, `[{"id":"1","subject":"clarify scope"}]`)
	got, err := NewFileSource(ok).List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got[0].Status)

	bad := writeBoard(t, `[{"id":"1","subject":"x","status":"done"}]`)
	_, err = NewFileSource(bad).List(context.Background(), Filter{})
	assert.ErrorContains(t, err, "invalid task status")
}

func TestFileSource_EmptyFile(t *testing.T) {
	got, err := NewFileSource(writeBoard(t, "  \n")).List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilter_Project(t *testing.T) {
	board := Static{
		{ID: "a", Metadata: map[string]string{MetaProject: "alpha"}},
		{ID: "b", Metadata: map[string]string{MetaProject: "beta"}},
		{ID: "shared"},
	}
	got, err := board.List(context.Background(), Filter{Project: "alpha"})
	require.NoError(t, err)

	var ids []string
	for _, task := range got {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"a", "shared"}, ids)
}

func TestFilter_Status(t *testing.T) {
	board := Static{
		{ID: "1", Status: StatusBlocked},
		{ID: "2", Status: StatusPending},
	}
	got, err := board.List(context.Background(), Filter{Status: []Status{StatusBlocked}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestDetect(t *testing.T) {
	_, ok := Detect("")
	assert.False(t, ok)

	_, ok = Detect(filepath.Join(t.TempDir(), "nope.json"))
	assert.False(t, ok)

	_, ok = Detect(t.TempDir())
	assert.False(t, ok)

	src, ok := Detect(writeBoard(t, "[]"))
	assert.True(t, ok)
	assert.NotNil(t, src)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusBlocked.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}
