package mmdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ic-timon/ipgeo/mmdb/mmdbtest"
)

func TestVerify_Valid(t *testing.T) {
	for _, rs := range []uint16{24, 28, 32} {
		r, err := OpenBytes(buildWriterDB(t, 6, rs), nil)
		require.NoError(t, err)
		require.NoError(t, r.Verify(), "record size %d", rs)
	}
}

func TestVerify_Corrupt(t *testing.T) {
	t.Run("separator", func(t *testing.T) {
		b := encodeTree(t, sixNodeTree())
		b[6*6+3] = 1
		r, err := OpenBytes(b, nil)
		require.NoError(t, err)
		require.ErrorIs(t, r.Verify(), ErrInvalidNode)
	})

	t.Run("record", func(t *testing.T) {
		tree := sixNodeTree()
		tree.Nodes[2][1] = mmdbtest.RawRecord(6 + 4)
		r, err := OpenBytes(encodeTree(t, tree), nil)
		require.NoError(t, err)
		require.ErrorIs(t, r.Verify(), ErrInvalidNode)
	})

	t.Run("data", func(t *testing.T) {
		tree := sixNodeTree()
		tree.Values = []any{mmdbtest.Raw{0x45, 'a'}}
		r, err := OpenBytes(encodeTree(t, tree), nil)
		require.NoError(t, err)
		require.ErrorIs(t, r.Verify(), ErrTruncated)
	})

	t.Run("major version", func(t *testing.T) {
		tree := sixNodeTree()
		tree.Metadata = mmdbtest.Map{{Key: "binary_format_major_version", Value: uint16(1)}}
		r, err := OpenBytes(encodeTree(t, tree), nil)
		require.NoError(t, err)
		require.ErrorIs(t, r.Verify(), ErrInvalidMetadata)
	})

	t.Run("database type", func(t *testing.T) {
		tree := sixNodeTree()
		tree.Omit = []string{"database_type"}
		r, err := OpenBytes(encodeTree(t, tree), nil)
		require.NoError(t, err)
		require.ErrorIs(t, r.Verify(), ErrInvalidMetadata)
	})

	t.Run("languages", func(t *testing.T) {
		tree := sixNodeTree()
		tree.Metadata = mmdbtest.Map{{Key: "languages", Value: []string{"en", ""}}}
		r, err := OpenBytes(encodeTree(t, tree), nil)
		require.NoError(t, err)
		require.ErrorIs(t, r.Verify(), ErrInvalidMetadata)
	})

	t.Run("closed", func(t *testing.T) {
		r, err := OpenBytes(encodeTree(t, sixNodeTree()), nil)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		require.ErrorIs(t, r.Verify(), ErrClosed)
	})
}
