package screenshot

import (
	"encoding/base64"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func dataURI(raw []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)

	rel, err := f.Save("session-1", dataURI(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, "session-1", path.Dir(rel))

	abs, err := f.Open("session-1", path.Base(rel))
	require.NoError(t, err)

	stored, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)
}

func TestSaveUniqueFilenames(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)

	first, err := f.Save("session-1", dataURI(pngBytes))
	require.NoError(t, err)
	second, err := f.Save("session-1", dataURI(pngBytes))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSaveRejectsBadPayloads(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)

	_, err = f.Save("", dataURI(pngBytes))
	assert.Error(t, err)

	_, err = f.Save("session-1", "not a data uri")
	assert.Error(t, err)

	_, err = f.Save("session-1", "data:image/png;base64,!!!not-base64!!!")
	assert.Error(t, err)
}

func TestOpenRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("secret"), 0644))

	f, err := NewFiles(filepath.Join(dir, "screenshots"))
	require.NoError(t, err)

	_, err = f.Open("..", "secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = f.Open("session-1", "../../secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestOpenMissingFile(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)

	_, err = f.Open("session-1", "1.png")
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteSessionRemovesOnlyItsSubtree(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)

	_, err = f.Save("session-1", dataURI(pngBytes))
	require.NoError(t, err)
	keep, err := f.Save("session-2", dataURI(pngBytes))
	require.NoError(t, err)

	require.NoError(t, f.DeleteSession("session-1"))

	_, err = f.Open("session-1")
	assert.True(t, os.IsNotExist(err))

	_, err = f.Open("session-2", filepath.Base(keep))
	assert.NoError(t, err)
}

func TestDeleteSessionGuardsRoot(t *testing.T) {
	f, err := NewFiles(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, f.DeleteSession("."), ErrOutsideRoot)
	assert.ErrorIs(t, f.DeleteSession(".."), ErrOutsideRoot)
}
