package mmdb

import (
	"fmt"
)

// Verify checks the whole file: metadata sanity, every search tree record,
// the separator and every data record the tree references. It touches every
// page of the file and is meant for offline checks, not the lookup path.
func (r *Reader) Verify() error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.verifyMetadata(); err != nil {
		return err
	}
	offsets, err := r.verifyTree()
	if err != nil {
		return err
	}
	for i, b := range r.layout.Separator(r.buf) {
		if b != 0 {
			return formatErr("verify separator", uint64(r.layout.TreeSize)+uint64(i),
				fmt.Errorf("%w: non-zero separator byte", ErrInvalidNode))
		}
	}
	for off := range offsets {
		if _, err := r.Decode(off); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) verifyMetadata() error {
	md := r.metadata
	start := uint64(r.layout.MetadataStart)
	if md.BinaryFormatMajorVersion != 2 {
		return formatErr("verify metadata", start,
			fmt.Errorf("%w: binary_format_major_version %d", ErrInvalidMetadata, md.BinaryFormatMajorVersion))
	}
	if md.DatabaseType == "" {
		return formatErr("verify metadata", start, fmt.Errorf("%w: empty database_type", ErrInvalidMetadata))
	}
	for _, lang := range md.Languages {
		if lang == "" {
			return formatErr("verify metadata", start, fmt.Errorf("%w: empty languages entry", ErrInvalidMetadata))
		}
	}
	for lang, text := range md.Description {
		if lang == "" || text == "" {
			return formatErr("verify metadata", start, fmt.Errorf("%w: empty description entry", ErrInvalidMetadata))
		}
	}
	return nil
}

// verifyTree checks every record and returns the distinct data offsets.
func (r *Reader) verifyTree() (map[DataOffset]struct{}, error) {
	offsets := make(map[DataOffset]struct{})
	for node := uint32(0); node < r.metadata.NodeCount; node++ {
		for branch := uint(0); branch < 2; branch++ {
			rec, err := r.readNode(node, branch)
			if err != nil {
				return nil, err
			}
			if rec <= r.metadata.NodeCount {
				continue
			}
			off, err := r.dataOffset(rec)
			if err != nil {
				return nil, err
			}
			offsets[off] = struct{}{}
		}
	}
	return offsets, nil
}
