package filesystem

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveAndOpen(t *testing.T) {
	s := newTestStore(t)

	n, err := s.Save("stored-1", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	f, err := s.Open("stored-1")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSaveRefusesOverwrite(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save("stored-1", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = s.Save("stored-1", strings.NewReader("second"))
	assert.Error(t, err, "stored names are unique, a second write is a bug")
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save("stored-1", strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, s.Delete("stored-1"))
	require.NoError(t, s.Delete("stored-1"), "deleting an already-removed file is not an error")

	exists, err := s.Exists("stored-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := s.Save(name, strings.NewReader("x"))
		assert.Error(t, err, "name %q must be rejected", name)
	}
}
