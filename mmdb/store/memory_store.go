package store

import "os"

// MemoryStore is a Store over a heap buffer.
type MemoryStore struct {
	data []byte
}

// NewMemoryStore wraps buf. buf must not be modified while the store is in use.
func NewMemoryStore(buf []byte) *MemoryStore {
	return &MemoryStore{data: buf}
}

// OpenMemory reads the whole file at path into memory.
func OpenMemory(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{data: data}, nil
}

func (s *MemoryStore) Bytes() []byte {
	return s.data
}

func (s *MemoryStore) Size() int64 {
	return int64(len(s.data))
}

// Close drops the buffer reference.
func (s *MemoryStore) Close() error {
	s.data = nil
	return nil
}
