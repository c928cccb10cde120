package store

// Store provides read-only access to the bytes of a database file.
type Store interface {
	// Bytes returns the full file contents. The slice is valid until Close is
	// called. Caller must not modify it.
	Bytes() []byte
	// Size returns the file size in bytes.
	Size() int64
	// Close releases resources (e.g. unmaps the file).
	Close() error
}

// Open returns a Store for path. With useMmap the file is mapped read-only,
// otherwise it is read into memory. Empty files come back as an empty
// MemoryStore so that callers report a missing metadata marker.
func Open(path string, useMmap bool) (Store, error) {
	if !useMmap {
		return OpenMemory(path)
	}
	s, err := OpenMmap(path)
	if err == ErrEmptyFile {
		return NewMemoryStore(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
