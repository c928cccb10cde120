package store

import (
	"bytes"
	"errors"
)

const (
	// DataSectionSeparatorSize is the run of zero bytes between the search
	// tree and the data section.
	DataSectionSeparatorSize = 16

	// MetadataSearchWindow is how far back from the end of the file the
	// metadata marker is searched for.
	MetadataSearchWindow = 128 * 1024
)

// MetadataStartMarker precedes the metadata map at the end of the file.
var MetadataStartMarker = []byte("\xAB\xCD\xEFMaxMind.com")

var (
	ErrMarkerNotFound  = errors.New("store: metadata marker not found")
	ErrBadRecordSize   = errors.New("store: record size must be 24, 28 or 32")
	ErrSectionOverflow = errors.New("store: search tree overlaps metadata")
)

// FileOffset is an absolute byte position in the database file.
type FileOffset uint64

// DataOffset is a byte position relative to the start of the data section.
// Search tree records and data-section pointers are expressed in it.
type DataOffset uint64

// FindMetadataMarker returns the offset of the right-most marker within the
// last window bytes of buf. window <= 0 uses MetadataSearchWindow.
func FindMetadataMarker(buf []byte, window int) (FileOffset, error) {
	if window <= 0 {
		window = MetadataSearchWindow
	}
	from := 0
	if len(buf) > window {
		from = len(buf) - window
	}
	i := bytes.LastIndex(buf[from:], MetadataStartMarker)
	if i < 0 {
		return 0, ErrMarkerNotFound
	}
	return FileOffset(from + i), nil
}

// NodeBytes returns the width in bytes of one node (two records).
func NodeBytes(recordSize uint16) (uint64, error) {
	switch recordSize {
	case 24, 28, 32:
		return uint64(recordSize) * 2 / 8, nil
	}
	return 0, ErrBadRecordSize
}

// Layout holds the section boundaries of a database file. All fields are
// absolute file offsets.
type Layout struct {
	TreeSize      FileOffset // search tree occupies [0, TreeSize)
	DataStart     FileOffset // first byte after the separator
	DataEnd       FileOffset // first byte of the metadata marker
	MetadataStart FileOffset // first byte after the metadata marker
}

// NewLayout derives section boundaries from the metadata fields and the
// position of the metadata marker.
func NewLayout(markerStart FileOffset, nodeCount uint32, recordSize uint16) (Layout, error) {
	nb, err := NodeBytes(recordSize)
	if err != nil {
		return Layout{}, err
	}
	treeSize := FileOffset(nb * uint64(nodeCount))
	dataStart := treeSize + DataSectionSeparatorSize
	if dataStart > markerStart {
		return Layout{}, ErrSectionOverflow
	}
	return Layout{
		TreeSize:      treeSize,
		DataStart:     dataStart,
		DataEnd:       markerStart,
		MetadataStart: markerStart + FileOffset(len(MetadataStartMarker)),
	}, nil
}

// Resolve converts a data-section offset to an absolute file offset.
func (l Layout) Resolve(off DataOffset) FileOffset {
	return l.DataStart + FileOffset(off)
}

// Separator returns the separator bytes between the tree and the data section.
func (l Layout) Separator(buf []byte) []byte {
	return buf[l.TreeSize:l.DataStart]
}
