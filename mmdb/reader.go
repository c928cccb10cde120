package mmdb

import (
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/ic-timon/ipgeo/mmdb/store"
)

// DataOffset is a position in the data section. Lookups resolve to one, and
// records shared between networks resolve to the same one.
type DataOffset = store.DataOffset

// Reader looks up IP addresses in a MaxMind DB file. It is immutable after
// Open and safe for concurrent lookups. Close must not race with lookups.
type Reader struct {
	src       store.Store
	buf       []byte
	metadata  Metadata
	layout    store.Layout
	data      decoder
	nodeBytes uint64

	ipv4Start      uint32
	ipv4StartDepth int

	closed atomic.Bool
}

// Open opens the database at path. cfg may be nil to use DefaultConfig().
func Open(path string, cfg *Config) (*Reader, error) {
	cfg = cfg.OrDefault()
	src, err := store.Open(path, cfg.UseMmap)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	r, err := newReader(src, cfg)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return r, nil
}

// OpenBytes opens a database held in buf. buf must not be modified while the
// reader is in use.
func OpenBytes(buf []byte, cfg *Config) (*Reader, error) {
	return newReader(store.NewMemoryStore(buf), cfg.OrDefault())
}

func newReader(src store.Store, cfg *Config) (*Reader, error) {
	buf := src.Bytes()
	md, layout, err := readMetadata(buf, cfg)
	if err != nil {
		return nil, err
	}
	nb, err := store.NodeBytes(md.RecordSize)
	if err != nil {
		return nil, formatErr("open", 0, ErrUnsupportedRecordSize)
	}
	r := &Reader{
		src:       src,
		buf:       buf,
		metadata:  md,
		layout:    layout,
		data:      newDecoder(buf, layout.DataStart, layout.DataEnd, cfg.MaxDecodeDepth),
		nodeBytes: nb,
	}
	if err := r.resolveIPv4Start(); err != nil {
		return nil, err
	}
	return r, nil
}

// Metadata returns the database metadata.
func (r *Reader) Metadata() Metadata {
	return r.metadata
}

// Lookup returns the record for ip. A valid address without a record returns
// found == false and a nil error.
func (r *Reader) Lookup(ip string) (Value, bool, error) {
	addr, err := parseAddr(ip)
	if err != nil {
		return Value{}, false, err
	}
	return r.LookupAddr(addr)
}

// LookupAddr is Lookup for a parsed address.
func (r *Reader) LookupAddr(addr netip.Addr) (Value, bool, error) {
	off, _, found, err := r.lookupOffset(addr)
	if err != nil || !found {
		return Value{}, false, err
	}
	v, err := r.Decode(off)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// LookupNetwork is Lookup that also returns the network the record applies
// to. On a miss the prefix covers the range without a record.
func (r *Reader) LookupNetwork(ip string) (Value, netip.Prefix, bool, error) {
	addr, err := parseAddr(ip)
	if err != nil {
		return Value{}, netip.Prefix{}, false, err
	}
	off, prefix, found, err := r.lookupOffset(addr)
	if err != nil {
		return Value{}, netip.Prefix{}, false, err
	}
	if !found {
		return Value{}, prefix, false, nil
	}
	v, err := r.Decode(off)
	if err != nil {
		return Value{}, netip.Prefix{}, false, err
	}
	return v, prefix, true, nil
}

// LookupOffset returns the data offset of the record for ip without decoding
// it. Callers can cache decoded records by offset.
func (r *Reader) LookupOffset(ip string) (DataOffset, bool, error) {
	addr, err := parseAddr(ip)
	if err != nil {
		return 0, false, err
	}
	off, _, found, err := r.lookupOffset(addr)
	return off, found, err
}

// Decode decodes the value at off in the data section.
func (r *Reader) Decode(off DataOffset) (Value, error) {
	if r.closed.Load() {
		return Value{}, ErrClosed
	}
	v, _, err := r.data.decode(r.layout.Resolve(off), 0)
	return v, err
}

func (r *Reader) lookupOffset(addr netip.Addr) (DataOffset, netip.Prefix, bool, error) {
	if r.closed.Load() {
		return 0, netip.Prefix{}, false, ErrClosed
	}
	if !addr.IsValid() {
		return 0, netip.Prefix{}, false, &InputError{Input: addr.String(), Err: ErrInvalidAddress}
	}
	addr = addr.Unmap().WithZone("")
	if addr.Is6() && r.metadata.IPVersion == 4 {
		return 0, netip.Prefix{}, false, &InputError{Input: addr.String(), Err: ErrIPv6InIPv4Database}
	}

	record, bits, err := r.traverse(addr)
	if err != nil {
		return 0, netip.Prefix{}, false, err
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return 0, netip.Prefix{}, false, &InputError{Input: addr.String(), Err: ErrInvalidAddress}
	}
	// Exhausting the address bits on an internal node is a miss.
	if record <= r.metadata.NodeCount {
		return 0, prefix, false, nil
	}
	off, err := r.dataOffset(record)
	if err != nil {
		return 0, netip.Prefix{}, false, err
	}
	return off, prefix, true, nil
}

// Close releases the file. Further lookups return ErrClosed. Close is
// idempotent.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.src.Close()
}

func parseAddr(ip string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.Addr{}, &InputError{Input: ip, Err: fmt.Errorf("%w: %v", ErrInvalidAddress, err)}
	}
	return addr, nil
}
