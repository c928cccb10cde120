package mmdb

import (
	"encoding/binary"
	"net/netip"

	"github.com/ic-timon/ipgeo/mmdb/store"
)

// ipv4SubtreeDepth is the depth of ::/96, where IPv6 databases root IPv4 space.
const ipv4SubtreeDepth = 96

// readNode returns the left (branch 0) or right (branch 1) record of node.
func (r *Reader) readNode(node uint32, branch uint) (uint32, error) {
	off := uint64(node) * r.nodeBytes
	if off+r.nodeBytes > uint64(r.layout.TreeSize) {
		return 0, formatErr("read node", off, ErrTruncated)
	}
	rec, err := readRecord(r.buf[off:off+r.nodeBytes], r.metadata.RecordSize, branch)
	if err != nil {
		return 0, formatErr("read node", off, err)
	}
	return rec, nil
}

// readRecord decodes one record from the bytes of a single node. The result
// depends only on those bytes.
func readRecord(n []byte, recordSize uint16, branch uint) (uint32, error) {
	switch recordSize {
	case 24:
		if len(n) < 6 {
			return 0, ErrTruncated
		}
		b := n[branch*3:]
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
	case 28:
		if len(n) < 7 {
			return 0, ErrTruncated
		}
		// The middle byte holds the high nibble of each record.
		if branch == 0 {
			return uint32(n[3]&0xF0)<<20 | uint32(n[0])<<16 | uint32(n[1])<<8 | uint32(n[2]), nil
		}
		return uint32(n[3]&0x0F)<<24 | uint32(n[4])<<16 | uint32(n[5])<<8 | uint32(n[6]), nil
	case 32:
		if len(n) < 8 {
			return 0, ErrTruncated
		}
		return binary.BigEndian.Uint32(n[branch*4:]), nil
	}
	return 0, ErrUnsupportedRecordSize
}

// resolveIPv4Start follows left branches from the root through ::/96. IPv4
// lookups in an IPv6 database start from the node reached. When the walk
// leaves the tree before ::/96 there is no IPv4 subtree and every IPv4 lookup
// misses, even if a shorter ::/N prefix holds data.
func (r *Reader) resolveIPv4Start() error {
	if r.metadata.IPVersion != 6 {
		r.ipv4Start, r.ipv4StartDepth = 0, 0
		return nil
	}
	node := uint32(0)
	i := 0
	for ; i < ipv4SubtreeDepth && node < r.metadata.NodeCount; i++ {
		next, err := r.readNode(node, 0)
		if err != nil {
			return err
		}
		node = next
	}
	if i < ipv4SubtreeDepth {
		node = r.metadata.NodeCount
	}
	r.ipv4Start, r.ipv4StartDepth = node, i
	return nil
}

// traverse walks the tree for ip and returns the terminal record together
// with the number of address bits consumed.
func (r *Reader) traverse(ip netip.Addr) (uint32, int, error) {
	var addr []byte
	node := uint32(0)
	if ip.Is4() {
		a := ip.As4()
		addr = a[:]
		node = r.ipv4Start
	} else {
		a := ip.As16()
		addr = a[:]
	}
	bitCount := len(addr) * 8
	nodeCount := r.metadata.NodeCount

	i := 0
	for ; i < bitCount && node < nodeCount; i++ {
		bit := uint(addr[i>>3]>>(7-uint(i&7))) & 1
		next, err := r.readNode(node, bit)
		if err != nil {
			return 0, 0, err
		}
		node = next
	}
	return node, i, nil
}

// dataOffset converts a data record into an offset in the data section.
func (r *Reader) dataOffset(record uint32) (DataOffset, error) {
	rel := uint64(record) - uint64(r.metadata.NodeCount)
	if record <= r.metadata.NodeCount || rel < store.DataSectionSeparatorSize {
		return 0, formatErr("resolve record", uint64(record), ErrInvalidNode)
	}
	off := DataOffset(rel - store.DataSectionSeparatorSize)
	if r.layout.Resolve(off) >= r.layout.DataEnd {
		return 0, formatErr("resolve record", uint64(record), ErrInvalidNode)
	}
	return off, nil
}
