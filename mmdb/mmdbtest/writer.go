package mmdbtest

import (
	"fmt"
	"net/netip"
)

type trieNode struct {
	child [2]*trieNode
	data  int // index into Writer.values for leaves, -1 for internal nodes
}

func (n *trieNode) leaf() bool { return n.data >= 0 }

// Writer builds a database from network prefixes. IPv4 networks in an IPv6
// database are placed under ::/96. An insert replaces whatever the tree held
// for the prefix, including more specific networks inserted before it.
type Writer struct {
	IPVersion  uint16
	RecordSize uint16
	Metadata   Map

	root   *trieNode
	values []any
}

// NewWriter returns a Writer for ipVersion 4 or 6 with the given record size.
func NewWriter(ipVersion, recordSize uint16) *Writer {
	return &Writer{
		IPVersion:  ipVersion,
		RecordSize: recordSize,
		root:       &trieNode{data: -1},
	}
}

// Insert maps every address in prefix to v.
func (w *Writer) Insert(prefix netip.Prefix, v any) error {
	if !prefix.IsValid() {
		return fmt.Errorf("mmdbtest: invalid prefix %v", prefix)
	}
	prefix = prefix.Masked()
	addr, bits := prefix.Addr(), prefix.Bits()
	var key []byte
	switch {
	case addr.Is4() && w.IPVersion == 6:
		a := addr.As4()
		key = append(make([]byte, 12), a[:]...)
		bits += 96
	case addr.Is4():
		a := addr.As4()
		key = a[:]
	case w.IPVersion == 4:
		return fmt.Errorf("mmdbtest: IPv6 prefix %v in an IPv4 database", prefix)
	default:
		a := addr.As16()
		key = a[:]
	}
	if bits == 0 {
		return fmt.Errorf("mmdbtest: prefix %v covers the whole tree", prefix)
	}

	w.values = append(w.values, v)
	data := len(w.values) - 1

	cur := w.root
	for i := 0; i < bits-1; i++ {
		b := bitAt(key, i)
		next := cur.child[b]
		switch {
		case next == nil:
			next = &trieNode{data: -1}
		case next.leaf():
			// Split a shorter network so both halves keep its value.
			next = &trieNode{
				data:  -1,
				child: [2]*trieNode{{data: next.data}, {data: next.data}},
			}
		}
		cur.child[b] = next
		cur = next
	}
	cur.child[bitAt(key, bits-1)] = &trieNode{data: data}
	return nil
}

func bitAt(key []byte, i int) int {
	return int(key[i>>3]>>(7-uint(i&7))) & 1
}

// Tree numbers the internal nodes breadth first and returns the file layout.
func (w *Writer) Tree() Tree {
	var order []*trieNode
	index := map[*trieNode]uint32{}
	queue := []*trieNode{w.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		index[n] = uint32(len(order))
		order = append(order, n)
		for _, c := range n.child {
			if c != nil && !c.leaf() {
				queue = append(queue, c)
			}
		}
	}

	nodes := make([][2]Record, len(order))
	for i, n := range order {
		for b, c := range n.child {
			switch {
			case c == nil:
				nodes[i][b] = Empty()
			case c.leaf():
				nodes[i][b] = Data(c.data)
			default:
				nodes[i][b] = Node(index[c])
			}
		}
	}
	return Tree{
		RecordSize: w.RecordSize,
		IPVersion:  w.IPVersion,
		Nodes:      nodes,
		Values:     w.values,
		Metadata:   w.Metadata,
	}
}

// Bytes encodes the database.
func (w *Writer) Bytes() ([]byte, error) {
	return w.Tree().Bytes()
}

// WriteFile encodes the database and atomically replaces path with it.
func (w *Writer) WriteFile(path string) error {
	b, err := w.Bytes()
	if err != nil {
		return err
	}
	return WriteFile(path, b)
}
