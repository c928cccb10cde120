package mmdb

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ic-timon/ipgeo/mmdb/mmdbtest"
)

func country(iso string) mmdbtest.Map {
	return mmdbtest.Map{{Key: "country", Value: mmdbtest.Map{{Key: "iso_code", Value: iso}}}}
}

func isoCode(t *testing.T, v Value) string {
	t.Helper()
	iso, ok := v.Path("country", "iso_code")
	require.True(t, ok, "no country.iso_code in %s", v)
	s, ok := iso.AsString()
	require.True(t, ok)
	return s
}

// sixNodeTree is a hand-built 24-bit IPv4 tree: five left branches lead to
// node 5, whose left record holds the only data.
func sixNodeTree() mmdbtest.Tree {
	nodes := make([][2]mmdbtest.Record, 6)
	for i := 0; i < 5; i++ {
		nodes[i] = [2]mmdbtest.Record{mmdbtest.Node(uint32(i + 1)), mmdbtest.Empty()}
	}
	nodes[5] = [2]mmdbtest.Record{mmdbtest.Data(0), mmdbtest.Empty()}
	return mmdbtest.Tree{
		RecordSize: 24,
		IPVersion:  4,
		Nodes:      nodes,
		Values:     []any{country("US")},
	}
}

func TestLookup_HandBuiltTree(t *testing.T) {
	r, err := OpenBytes(encodeTree(t, sixNodeTree()), nil)
	require.NoError(t, err)
	require.Equal(t, uint32(6), r.Metadata().NodeCount)

	v, found, err := r.Lookup("1.2.3.4")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "US", isoCode(t, v))
	assert.Equal(t, `{"country":{"iso_code":"US"}}`, v.String())

	v, found, err = r.Lookup("8.8.8.8")
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, v.IsNull())

	_, prefix, found, err := r.LookupNetwork("1.2.3.4")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, netip.MustParsePrefix("0.0.0.0/6"), prefix)

	_, prefix, found, err = r.LookupNetwork("8.8.8.8")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, netip.MustParsePrefix("8.0.0.0/5"), prefix)
}

func buildWriterDB(t *testing.T, ipVersion, recordSize uint16) []byte {
	t.Helper()
	w := mmdbtest.NewWriter(ipVersion, recordSize)
	require.NoError(t, w.Insert(netip.MustParsePrefix("1.2.3.0/24"), country("US")))
	require.NoError(t, w.Insert(netip.MustParsePrefix("81.2.69.0/24"), country("GB")))
	require.NoError(t, w.Insert(netip.MustParsePrefix("81.2.69.128/26"), country("IE")))
	if ipVersion == 6 {
		require.NoError(t, w.Insert(netip.MustParsePrefix("2001:db8::/32"), country("DE")))
	}
	b, err := w.Bytes()
	require.NoError(t, err)
	return b
}

func TestLookup_WriterDatabases(t *testing.T) {
	for _, ipVersion := range []uint16{4, 6} {
		for _, rs := range []uint16{24, 28, 32} {
			t.Run(fmt.Sprintf("v%d-%d", ipVersion, rs), func(t *testing.T) {
				r, err := OpenBytes(buildWriterDB(t, ipVersion, rs), nil)
				require.NoError(t, err)

				for ip, want := range map[string]string{
					"1.2.3.4":         "US",
					"1.2.3.255":       "US",
					"81.2.69.1":       "GB",
					"81.2.69.130":     "IE",
					"81.2.69.200":     "GB",
					"::ffff:1.2.3.77": "US",
				} {
					v, found, err := r.Lookup(ip)
					require.NoError(t, err, ip)
					require.True(t, found, ip)
					assert.Equal(t, want, isoCode(t, v), ip)
				}

				for _, ip := range []string{"1.2.4.0", "0.0.0.0", "255.255.255.255"} {
					_, found, err := r.Lookup(ip)
					require.NoError(t, err, ip)
					assert.False(t, found, ip)
				}

				_, prefix, found, err := r.LookupNetwork("81.2.69.130")
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, netip.MustParsePrefix("81.2.69.128/26"), prefix)

				if ipVersion == 4 {
					_, _, err := r.Lookup("2001:db8::1")
					require.ErrorIs(t, err, ErrIPv6InIPv4Database)
					var ie *InputError
					assert.True(t, errors.As(err, &ie))
					return
				}
				v, found, err := r.Lookup("2001:db8::1")
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, "DE", isoCode(t, v))

				_, found, err = r.Lookup("2001:db9::1")
				require.NoError(t, err)
				assert.False(t, found)
			})
		}
	}
}

func TestLookup_InvalidAddress(t *testing.T) {
	r, err := OpenBytes(encodeTree(t, sixNodeTree()), nil)
	require.NoError(t, err)

	for _, ip := range []string{"", "not-an-ip", "1.2.3", "1.2.3.4/24", "256.1.1.1"} {
		_, _, err := r.Lookup(ip)
		require.ErrorIs(t, err, ErrInvalidAddress, ip)
		var ie *InputError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, ip, ie.Input)
	}

	_, _, err = r.LookupAddr(netip.Addr{})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestLookupOffset_SharedRecords(t *testing.T) {
	r, err := OpenBytes(encodeTree(t, mmdbtest.Tree{
		RecordSize: 24,
		IPVersion:  4,
		Nodes: [][2]mmdbtest.Record{
			{mmdbtest.Node(1), mmdbtest.Data(0)},
			{mmdbtest.Data(0), mmdbtest.Empty()},
		},
		Values: []any{country("FR")},
	}), nil)
	require.NoError(t, err)

	low, found, err := r.LookupOffset("10.0.0.1")
	require.NoError(t, err)
	require.True(t, found)
	high, found, err := r.LookupOffset("200.0.0.1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, low, high)

	_, found, err = r.LookupOffset("64.0.0.1")
	require.NoError(t, err)
	assert.False(t, found)

	v, err := r.Decode(low)
	require.NoError(t, err)
	assert.Equal(t, "FR", isoCode(t, v))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mmdb")
	require.NoError(t, mmdbtest.WriteFile(path, buildWriterDB(t, 6, 28)))

	for _, useMmap := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.UseMmap = useMmap
		r, err := Open(path, cfg)
		require.NoError(t, err)

		v, found, err := r.Lookup("81.2.69.1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "GB", isoCode(t, v))

		require.NoError(t, r.Close())
		require.NoError(t, r.Close())
		_, _, err = r.Lookup("81.2.69.1")
		require.ErrorIs(t, err, ErrClosed)
		_, err = r.Decode(0)
		require.ErrorIs(t, err, ErrClosed)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.mmdb"), nil)
	var ioe *IOError
	require.True(t, errors.As(err, &ioe))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	empty := filepath.Join(dir, "empty.mmdb")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty, nil)
	require.ErrorIs(t, err, ErrMetadataNotFound)

	junk := filepath.Join(dir, "junk.mmdb")
	require.NoError(t, os.WriteFile(junk, []byte("this is not a database"), 0o644))
	_, err = Open(junk, nil)
	require.ErrorIs(t, err, ErrMetadataNotFound)
}

func TestLookup_TruncatedRecord(t *testing.T) {
	tree := sixNodeTree()
	// A string that claims five bytes with only one before the marker.
	tree.Values = []any{mmdbtest.Raw{0x45, 'a'}}
	r, err := OpenBytes(encodeTree(t, tree), nil)
	require.NoError(t, err)

	_, _, err = r.Lookup("1.2.3.4")
	require.ErrorIs(t, err, ErrTruncated)
	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestLookup_RecordOutsideDataSection(t *testing.T) {
	for _, rec := range []uint32{2 + 1, 2 + 15, 2 + 16 + 1000} {
		r, err := OpenBytes(encodeTree(t, mmdbtest.Tree{
			RecordSize: 24,
			IPVersion:  4,
			Nodes: [][2]mmdbtest.Record{
				{mmdbtest.Node(1), mmdbtest.Empty()},
				{mmdbtest.RawRecord(rec), mmdbtest.Empty()},
			},
		}), nil)
		require.NoError(t, err)

		_, _, err = r.Lookup("1.2.3.4")
		require.ErrorIs(t, err, ErrInvalidNode, "record %d", rec)
	}
}

func TestLookup_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mmdb")
	require.NoError(t, mmdbtest.WriteFile(path, buildWriterDB(t, 6, 24)))
	r, err := Open(path, nil)
	require.NoError(t, err)
	defer r.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				v, found, err := r.Lookup(fmt.Sprintf("81.2.69.%d", i%128))
				if err != nil || !found {
					errs <- fmt.Errorf("lookup %d: found=%v err=%v", i, found, err)
					return
				}
				if iso, _ := v.Path("country", "iso_code"); iso.String() != `"GB"` {
					errs <- fmt.Errorf("lookup %d: got %s", i, v)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
