package store

import (
	"errors"
	"os"

	"github.com/edsrzf/mmap-go"
)

// ErrEmptyFile is returned by OpenMmap for zero-length files, which cannot be mapped.
var ErrEmptyFile = errors.New("store: file is empty")

// MmapStore is a Store backed by an mmap'd file.
type MmapStore struct {
	f    *os.File
	data mmap.MMap
}

// OpenMmap opens a file and returns a read-only Store.
func OpenMmap(path string) (*MmapStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, ErrEmptyFile
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	// Trie walks touch pages in no particular order.
	_ = adviseRandom(m)
	return &MmapStore{f: f, data: m}, nil
}

// Bytes returns the full mapped file.
func (s *MmapStore) Bytes() []byte {
	return s.data
}

// Size returns the length of the mapping.
func (s *MmapStore) Size() int64 {
	return int64(len(s.data))
}

// Close unmaps the file and closes it.
func (s *MmapStore) Close() error {
	if s.data != nil {
		if err := s.data.Unmap(); err != nil {
			return err
		}
		s.data = nil
	}
	if s.f != nil {
		err := s.f.Close()
		s.f = nil
		return err
	}
	return nil
}
