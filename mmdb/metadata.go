package mmdb

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ic-timon/ipgeo/mmdb/store"
)

// Metadata describes a database file. It is fixed for the reader's lifetime.
type Metadata struct {
	NodeCount                uint32
	RecordSize               uint16
	IPVersion                uint16
	DatabaseType             string
	Languages                []string
	Description              map[string]string
	BinaryFormatMajorVersion uint16
	BinaryFormatMinorVersion uint16
	BuildEpoch               uint64
}

// BuildTime returns the database build time.
func (m Metadata) BuildTime() time.Time {
	return time.Unix(int64(m.BuildEpoch), 0).UTC()
}

// SearchTreeSize returns the byte length of the search tree.
func (m Metadata) SearchTreeSize() uint64 {
	return (uint64(m.RecordSize)*2 + 7) / 8 * uint64(m.NodeCount)
}

// readMetadata finds the metadata marker in buf, decodes the metadata map
// that follows it and derives the section layout.
func readMetadata(buf []byte, cfg *Config) (Metadata, store.Layout, error) {
	marker, err := store.FindMetadataMarker(buf, cfg.MetadataSearchWindow)
	if err != nil {
		return Metadata{}, store.Layout{}, formatErr("locate metadata", uint64(len(buf)), ErrMetadataNotFound)
	}
	start := marker + store.FileOffset(len(store.MetadataStartMarker))

	// Metadata pointers are file-absolute.
	d := newDecoder(buf, 0, store.FileOffset(len(buf)), cfg.MaxDecodeDepth)
	v, _, err := d.decode(start, 0)
	if err != nil {
		return Metadata{}, store.Layout{}, err
	}
	m, ok := v.AsMap()
	if !ok {
		return Metadata{}, store.Layout{}, formatErr("decode metadata", uint64(start),
			fmt.Errorf("%w: metadata is a %s, not a map", ErrInvalidMetadata, v.Kind()))
	}
	md, err := metadataFromMap(m)
	if err != nil {
		return Metadata{}, store.Layout{}, formatErr("decode metadata", uint64(start), err)
	}

	layout, err := store.NewLayout(marker, md.NodeCount, md.RecordSize)
	switch {
	case errors.Is(err, store.ErrBadRecordSize):
		return Metadata{}, store.Layout{}, formatErr("decode metadata", uint64(start),
			fmt.Errorf("%w: %d", ErrUnsupportedRecordSize, md.RecordSize))
	case err != nil:
		return Metadata{}, store.Layout{}, formatErr("decode metadata", uint64(start),
			fmt.Errorf("%w: search tree of %d nodes does not fit before the metadata", ErrInvalidMetadata, md.NodeCount))
	}
	return md, layout, nil
}

func metadataFromMap(m Map) (Metadata, error) {
	var md Metadata
	nodeCount, err := requiredUint(m, "node_count", math.MaxUint32)
	if err != nil {
		return md, err
	}
	recordSize, err := requiredUint(m, "record_size", math.MaxUint16)
	if err != nil {
		return md, err
	}
	ipVersion, err := requiredUint(m, "ip_version", math.MaxUint16)
	if err != nil {
		return md, err
	}
	if ipVersion != 4 && ipVersion != 6 {
		return md, fmt.Errorf("%w: ip_version %d", ErrInvalidMetadata, ipVersion)
	}
	md.NodeCount = uint32(nodeCount)
	md.RecordSize = uint16(recordSize)
	md.IPVersion = uint16(ipVersion)

	if md.DatabaseType, err = optionalString(m, "database_type"); err != nil {
		return md, err
	}
	if md.Languages, err = optionalStrings(m, "languages"); err != nil {
		return md, err
	}
	if md.Description, err = optionalStringMap(m, "description"); err != nil {
		return md, err
	}
	major, err := optionalUint(m, "binary_format_major_version", math.MaxUint16)
	if err != nil {
		return md, err
	}
	minor, err := optionalUint(m, "binary_format_minor_version", math.MaxUint16)
	if err != nil {
		return md, err
	}
	md.BinaryFormatMajorVersion = uint16(major)
	md.BinaryFormatMinorVersion = uint16(minor)
	if md.BuildEpoch, err = optionalUint(m, "build_epoch", math.MaxUint64); err != nil {
		return md, err
	}
	return md, nil
}

func requiredUint(m Map, key string, limit uint64) (uint64, error) {
	if _, ok := m.Get(key); !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidMetadata, key)
	}
	return optionalUint(m, key, limit)
}

func optionalUint(m Map, key string, limit uint64) (uint64, error) {
	v, ok := m.Get(key)
	if !ok {
		return 0, nil
	}
	u, ok := v.AsUint()
	if !ok {
		return 0, fmt.Errorf("%w: %s is a %s", ErrInvalidMetadata, key, v.Kind())
	}
	if u > limit {
		return 0, fmt.Errorf("%w: %s %d out of range", ErrInvalidMetadata, key, u)
	}
	return u, nil
}

func optionalString(m Map, key string) (string, error) {
	v, ok := m.Get(key)
	if !ok {
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%w: %s is a %s", ErrInvalidMetadata, key, v.Kind())
	}
	return s, nil
}

func optionalStrings(m Map, key string) ([]string, error) {
	v, ok := m.Get(key)
	if !ok {
		return nil, nil
	}
	arr, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrInvalidMetadata, key, v.Kind())
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.AsString()
		if !ok {
			return nil, fmt.Errorf("%w: %s holds a %s", ErrInvalidMetadata, key, e.Kind())
		}
		out = append(out, s)
	}
	return out, nil
}

func optionalStringMap(m Map, key string) (map[string]string, error) {
	v, ok := m.Get(key)
	if !ok {
		return nil, nil
	}
	sub, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrInvalidMetadata, key, v.Kind())
	}
	out := make(map[string]string, len(sub))
	for _, e := range sub {
		s, ok := e.Value.AsString()
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is a %s", ErrInvalidMetadata, key, e.Key, e.Value.Kind())
		}
		out[e.Key] = s
	}
	return out, nil
}
