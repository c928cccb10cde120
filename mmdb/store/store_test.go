package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, b []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.mmdb")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestOpen_MmapAndMemoryAgree(t *testing.T) {
	content := bytes.Repeat([]byte("ipgeo"), 1000)
	path := writeTemp(t, content)

	for _, useMmap := range []bool{true, false} {
		s, err := Open(path, useMmap)
		require.NoError(t, err)
		assert.Equal(t, content, s.Bytes())
		assert.Equal(t, int64(len(content)), s.Size())
		require.NoError(t, s.Close())
	}
}

func TestOpenMmap_EmptyFile(t *testing.T) {
	path := writeTemp(t, nil)

	_, err := OpenMmap(path)
	require.ErrorIs(t, err, ErrEmptyFile)

	s, err := Open(path, true)
	require.NoError(t, err)
	assert.Empty(t, s.Bytes())
	require.NoError(t, s.Close())
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mmdb")
	for _, useMmap := range []bool{true, false} {
		s, err := Open(path, useMmap)
		require.Error(t, err)
		assert.True(t, os.IsNotExist(err))
		assert.Nil(t, s)
	}
}

func TestMmapStore_CloseTwice(t *testing.T) {
	s, err := OpenMmap(writeTemp(t, []byte("x")))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Nil(t, s.Bytes())
}

func TestFindMetadataMarker(t *testing.T) {
	buf := append([]byte("tree"), MetadataStartMarker...)
	buf = append(buf, "data"...)
	buf = append(buf, MetadataStartMarker...)
	buf = append(buf, "meta"...)

	off, err := FindMetadataMarker(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, FileOffset(4+len(MetadataStartMarker)+4), off, "right-most marker wins")

	// Marker outside the search window.
	_, err = FindMetadataMarker(buf, 5)
	require.ErrorIs(t, err, ErrMarkerNotFound)

	_, err = FindMetadataMarker(nil, 0)
	require.ErrorIs(t, err, ErrMarkerNotFound)
}

func TestNewLayout(t *testing.T) {
	l, err := NewLayout(200, 10, 28)
	require.NoError(t, err)
	assert.Equal(t, FileOffset(70), l.TreeSize)
	assert.Equal(t, FileOffset(86), l.DataStart)
	assert.Equal(t, FileOffset(200), l.DataEnd)
	assert.Equal(t, FileOffset(200+len(MetadataStartMarker)), l.MetadataStart)
	assert.Equal(t, FileOffset(96), l.Resolve(DataOffset(10)))

	buf := make([]byte, 200)
	assert.Len(t, l.Separator(buf), DataSectionSeparatorSize)

	_, err = NewLayout(80, 10, 28)
	require.ErrorIs(t, err, ErrSectionOverflow)

	_, err = NewLayout(200, 10, 20)
	require.ErrorIs(t, err, ErrBadRecordSize)
}

func TestNodeBytes(t *testing.T) {
	for rs, want := range map[uint16]uint64{24: 6, 28: 7, 32: 8} {
		got, err := NodeBytes(rs)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := NodeBytes(16)
	require.ErrorIs(t, err, ErrBadRecordSize)
}
