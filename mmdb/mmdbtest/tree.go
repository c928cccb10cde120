package mmdbtest

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// MetadataStartMarker precedes the metadata map.
var MetadataStartMarker = []byte("\xAB\xCD\xEFMaxMind.com")

// SeparatorSize is the number of zero bytes between tree and data section.
const SeparatorSize = 16

// BuildEpoch is the build_epoch written by default.
var BuildEpoch = uint64(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Unix())

type recordKind uint8

const (
	recordNode recordKind = iota
	recordEmpty
	recordData
	recordRaw
)

// Record is one half of a search tree node.
type Record struct {
	kind recordKind
	n    uint32
}

// Node points at node i.
func Node(i uint32) Record { return Record{kind: recordNode, n: i} }

// Empty marks a range without data.
func Empty() Record { return Record{kind: recordEmpty} }

// Data points at Tree.Values[i].
func Data(i int) Record { return Record{kind: recordData, n: uint32(i)} }

// RawRecord is written as v unchanged.
func RawRecord(v uint32) Record { return Record{kind: recordRaw, n: v} }

// Tree describes a complete database file.
type Tree struct {
	RecordSize uint16
	IPVersion  uint16
	Nodes      [][2]Record
	Values     []any

	// Metadata replaces or adds metadata entries by key. Omit drops keys.
	Metadata Map
	Omit     []string
}

// Bytes encodes the file.
func (t Tree) Bytes() ([]byte, error) {
	nodeCount := uint32(len(t.Nodes))

	var data Encoder
	offsets := make([]uint32, len(t.Values))
	for i, v := range t.Values {
		off, err := data.Encode(v)
		if err != nil {
			return nil, err
		}
		offsets[i] = off
	}

	var out []byte
	for i, n := range t.Nodes {
		var rec [2]uint32
		for b, r := range n {
			switch r.kind {
			case recordNode, recordRaw:
				rec[b] = r.n
			case recordEmpty:
				rec[b] = nodeCount
			case recordData:
				if int(r.n) >= len(offsets) {
					return nil, fmt.Errorf("mmdbtest: node %d references value %d of %d", i, r.n, len(offsets))
				}
				rec[b] = nodeCount + SeparatorSize + offsets[r.n]
			}
		}
		enc, err := EncodeNode(t.RecordSize, rec[0], rec[1])
		if err != nil {
			return nil, fmt.Errorf("mmdbtest: node %d: %w", i, err)
		}
		out = append(out, enc...)
	}
	out = append(out, make([]byte, SeparatorSize)...)
	out = append(out, data.Bytes()...)
	out = append(out, MetadataStartMarker...)

	var md Encoder
	if _, err := md.Encode(t.metadata(nodeCount)); err != nil {
		return nil, err
	}
	return append(out, md.Bytes()...), nil
}

func (t Tree) metadata(nodeCount uint32) Map {
	m := Map{
		{"node_count", nodeCount},
		{"record_size", t.RecordSize},
		{"ip_version", t.IPVersion},
		{"database_type", "ipgeo-Test"},
		{"languages", []string{"en"}},
		{"description", Map{{"en", "ipgeo test database"}}},
		{"binary_format_major_version", uint16(2)},
		{"binary_format_minor_version", uint16(0)},
		{"build_epoch", BuildEpoch},
	}
	for _, kv := range t.Metadata {
		replaced := false
		for i := range m {
			if m[i].Key == kv.Key {
				m[i].Value = kv.Value
				replaced = true
			}
		}
		if !replaced {
			m = append(m, kv)
		}
	}
	for _, key := range t.Omit {
		for i := range m {
			if m[i].Key == key {
				m = append(m[:i], m[i+1:]...)
				break
			}
		}
	}
	return m
}

// EncodeNode encodes one node with the given left and right records.
func EncodeNode(recordSize uint16, left, right uint32) ([]byte, error) {
	if recordSize != 32 && (left>>recordSize != 0 || right>>recordSize != 0) {
		return nil, fmt.Errorf("record %d or %d does not fit in %d bits", left, right, recordSize)
	}
	switch recordSize {
	case 24:
		return []byte{
			byte(left >> 16), byte(left >> 8), byte(left),
			byte(right >> 16), byte(right >> 8), byte(right),
		}, nil
	case 28:
		return []byte{
			byte(left >> 16), byte(left >> 8), byte(left),
			byte(left>>24)<<4 | byte(right>>24)&0x0F,
			byte(right >> 16), byte(right >> 8), byte(right),
		}, nil
	case 32:
		b := binary.BigEndian.AppendUint32(nil, left)
		return binary.BigEndian.AppendUint32(b, right), nil
	}
	return nil, fmt.Errorf("record size %d", recordSize)
}

// WriteFile writes b to path through a temporary file and a rename, the way a
// database updater replaces a live file.
func WriteFile(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
