package merkle

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
)

const (
	emptyRootDepth4  = "0x03f67d530bda557828d2c14b120213ebba992946d5d84e6413bdf3f3818db3f4"
	emptyRootDepth16 = "0x20895422b4a0a9dceb6b9e8b1e34d9dec311507bd6e899fa8136cb2deba209e8"
	emptyRootDepth32 = "0x01e202cf4ac3721b9bfd398ec65969c811f32cb1e46df020337e9fc2fda0f014"
)

var testLeaf = common.LeftPadBytes([]byte{0xaa, 0xbb, 0xcc, 0xdd}, 32)

func TestEmptyRoots(t *testing.T) {
	for depth, want := range map[int]string{4: emptyRootDepth4, 16: emptyRootDepth16, 32: emptyRootDepth32} {
		tree, err := New(depth)
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash(want), tree.Root(), "depth %d", depth)

		root, err := EmptyRoot(depth)
		require.NoError(t, err)
		assert.Equal(t, tree.Root(), root)
	}

	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidDepth)
	_, err = New(MaxDepth + 1)
	assert.ErrorIs(t, err, ErrInvalidDepth)
}

func TestSetEntry(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)

	require.NoError(t, tree.SetEntry(0, testLeaf))
	assert.Equal(t, common.HexToHash("0x0c757586c4b5ac53bc40495253025aade4bcf2acb372e2335f552b7aac80acbc"), tree.Root())
	assert.EqualValues(t, 1, tree.NumEntries())

	entry, err := tree.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, ZeroEntry, entry)

	require.NoError(t, tree.SetEntry(3, testLeaf))
	assert.Equal(t, common.HexToHash("0x2cc7cca9f435df402483f63a81d740319f1cb7ddac894bc93d001eab6b61dfea"), tree.Root())
	assert.EqualValues(t, 4, tree.NumEntries())

	entry, err = tree.Entry(3)
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(testLeaf), entry)
}

func TestSetEntryErrors(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)
	before := tree.Root()

	assert.ErrorIs(t, tree.SetEntry(16, testLeaf), ErrOutOfRange)
	assert.ErrorIs(t, tree.SetEntry(0, []byte{1, 2, 3}), ErrInvalidEntryLength)
	assert.ErrorIs(t, tree.SetEntry(0, make([]byte, 33)), ErrInvalidEntryLength)
	_, err = tree.Entry(16)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, before, tree.Root())
	assert.Zero(t, tree.NumEntries())
}

func TestRootChangesOnEveryWrite(t *testing.T) {
	tree, err := New(8)
	require.NoError(t, err)
	empty := tree.Root()

	seen := map[common.Hash]bool{empty: true}
	for i := uint64(0); i < 10; i++ {
		leaf := make([]byte, 32)
		leaf[0] = byte(i + 1)
		require.NoError(t, tree.SetEntry(i, leaf))
		root := tree.Root()
		assert.False(t, seen[root], "root repeated after writing leaf %d", i)
		seen[root] = true
	}
	assert.Len(t, tree.Leaves(), 10)
}

func TestAddressMapping(t *testing.T) {
	tree, err := New(3)
	require.NoError(t, err)

	address, ok := tree.LeafAddress(0)
	require.True(t, ok)
	assert.EqualValues(t, 7, address)
	address, ok = tree.LeafAddress(7)
	require.True(t, ok)
	assert.EqualValues(t, 14, address)
	_, ok = tree.LeafAddress(8)
	assert.False(t, ok)

	index, ok := tree.AddressToIndex(14)
	require.True(t, ok)
	assert.EqualValues(t, 7, index)
	_, ok = tree.AddressToIndex(3)
	assert.False(t, ok)
}

func TestPath(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)
	for _, i := range []uint64{0, 5, 6, 15} {
		leaf := make([]byte, 32)
		leaf[31] = byte(i + 1)
		require.NoError(t, tree.SetEntry(i, leaf))
	}

	for i := uint64(0); i < tree.Capacity(); i++ {
		p := tree.Path(i)
		require.Len(t, p.Siblings, 4)
		require.Len(t, p.Bits, 4)
		for k := range p.Bits {
			assert.Equal(t, (i>>k)&1 == 1, p.Bits[k], "index %d level %d", i, k)
		}
		leaf, err := tree.Entry(i)
		require.NoError(t, err)
		assert.Equal(t, tree.Root(), p.ComputeRoot(leaf), "index %d", i)
	}

	forged := tree.Path(5)
	assert.NotEqual(t, tree.Root(), forged.ComputeRoot(common.HexToHash("0x1234")))

	assert.True(t, tree.Path(16).Empty())
	assert.False(t, tree.Path(0).Empty())
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tree")

	tree, err := Open(dir, 16)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(emptyRootDepth16), tree.Root())
	require.NoError(t, tree.Save())
	require.NoError(t, tree.Close())

	tree, err = Open(dir, 16)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(emptyRootDepth16), tree.Root())

	require.NoError(t, tree.SetEntry(0, testLeaf))
	assert.EqualValues(t, 1, tree.NumEntries())
	entry, err := tree.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, ZeroEntry, entry)
	root := tree.Root()
	assert.Equal(t, common.HexToHash("0x0cd60ec2b9c43f000cae0e90faafad46de29f7d4ebdd2b1591dbd6a5b38b6246"), root)
	require.NoError(t, tree.SetEntry(9, testLeaf))
	root = tree.Root()
	require.NoError(t, tree.Save())
	require.NoError(t, tree.Close())

	reloaded, err := Open(dir, 16)
	require.NoError(t, err)
	defer reloaded.Close()
	assert.Equal(t, root, reloaded.Root())
	assert.EqualValues(t, 10, reloaded.NumEntries())
	for i := uint64(0); i < 12; i++ {
		want, err := tree.Entry(i)
		require.NoError(t, err)
		got, err := reloaded.Entry(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "entry %d", i)
	}
}

func TestUnsavedChangesAreDropped(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tree")

	tree, err := Open(dir, 4)
	require.NoError(t, err)
	require.NoError(t, tree.SetEntry(0, testLeaf))
	require.NoError(t, tree.Save())
	saved := tree.Root()
	require.NoError(t, tree.SetEntry(1, testLeaf))
	require.NoError(t, tree.Close())

	reloaded, err := Open(dir, 4)
	require.NoError(t, err)
	defer reloaded.Close()
	assert.Equal(t, saved, reloaded.Root())
}

func TestOpenDepthMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tree")

	tree, err := Open(dir, 4)
	require.NoError(t, err)
	require.NoError(t, tree.SetEntry(2, testLeaf))
	require.NoError(t, tree.Save())
	require.NoError(t, tree.Close())

	_, err = Open(dir, 16)
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestOpenLeavesWithoutDepth(t *testing.T) {
	for name, key := range map[string][]byte{
		"leaf":      leafKey(2),
		"populated": populatedKey,
	} {
		dir := filepath.Join(t.TempDir(), "tree")
		db, err := leveldb.OpenFile(dir, nil)
		require.NoError(t, err)
		require.NoError(t, db.Put(key, testLeaf, nil), name)
		require.NoError(t, db.Close())

		_, err = Open(dir, 4)
		assert.ErrorIs(t, err, ErrCorruptState, name)
	}

	tree, err := Open(filepath.Join(t.TempDir(), "fresh"), 4)
	require.NoError(t, err, "an empty store is a new tree")
	require.NoError(t, tree.Close())
}
