// tree.go - Fixed-depth sparse Merkle tree over 32-byte leaves.
//
// Nodes are addressed breadth-first: the root is address 0 and the children
// of address a are 2a+1 and 2a+2, so leaf i lives at i + 2^depth - 1.
// Only nodes that differ from the empty subtree of their height are stored.

package merkle

import (
	"math/bits"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"zethclient/internal/mimc"
)

// MaxDepth bounds the tree so leaf addresses fit in a uint64.
const MaxDepth = 32

var (
	ErrOutOfRange         = errors.New("merkle: leaf index out of range")
	ErrInvalidEntryLength = errors.New("merkle: entry must be 32 bytes")
	ErrInvalidDepth       = errors.New("merkle: invalid tree depth")
	ErrCorruptState       = errors.New("merkle: corrupt persisted state")
)

// ZeroEntry is the value of every unpopulated leaf.
var ZeroEntry = common.Hash{}

var (
	zeroMu     sync.Mutex
	zeroHashes = []common.Hash{ZeroEntry}
)

// zeroHashesFor returns the empty subtree digest for every height 0..depth.
func zeroHashesFor(depth int) []common.Hash {
	zeroMu.Lock()
	defer zeroMu.Unlock()
	for len(zeroHashes) <= depth {
		prev := zeroHashes[len(zeroHashes)-1]
		zeroHashes = append(zeroHashes, Combine(prev, prev))
	}
	return zeroHashes[:depth+1]
}

// Combine returns the parent digest of two children.
func Combine(left, right common.Hash) common.Hash {
	return common.Hash(mimc.Combine(left, right))
}

// EmptyRoot returns the root of a tree of the given depth with no leaves set.
func EmptyRoot(depth int) (common.Hash, error) {
	if depth < 1 || depth > MaxDepth {
		return common.Hash{}, errors.Wrapf(ErrInvalidDepth, "depth %d", depth)
	}
	return zeroHashesFor(depth)[depth], nil
}

// Tree is an in-memory Merkle tree. It allows one writer and many readers.
type Tree struct {
	mu        sync.RWMutex
	depth     int
	zeros     []common.Hash
	nodes     map[uint64]common.Hash
	populated uint64
}

// New returns an empty tree of the given depth.
func New(depth int) (*Tree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, errors.Wrapf(ErrInvalidDepth, "depth %d", depth)
	}
	return &Tree{
		depth: depth,
		zeros: zeroHashesFor(depth),
		nodes: make(map[uint64]common.Hash),
	}, nil
}

// Depth returns the number of levels below the root.
func (t *Tree) Depth() int { return t.depth }

// Capacity returns the number of leaves, 2^depth.
func (t *Tree) Capacity() uint64 { return uint64(1) << t.depth }

// NumEntries returns one past the highest index ever set.
func (t *Tree) NumEntries() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.populated
}

// LeafAddress maps a leaf index to its node address.
func (t *Tree) LeafAddress(index uint64) (uint64, bool) {
	if index >= t.Capacity() {
		return 0, false
	}
	return index + t.Capacity() - 1, true
}

// AddressToIndex is the inverse of LeafAddress.
func (t *Tree) AddressToIndex(address uint64) (uint64, bool) {
	first := t.Capacity() - 1
	if address < first || address >= first+t.Capacity() {
		return 0, false
	}
	return address - first, true
}

// height of the subtree rooted at address; leaves have height 0.
func (t *Tree) height(address uint64) int {
	return t.depth - (bits.Len64(address+1) - 1)
}

func (t *Tree) node(address uint64) common.Hash {
	if h, ok := t.nodes[address]; ok {
		return h
	}
	return t.zeros[t.height(address)]
}

// SetEntry stores data at leaf index and recomputes every ancestor.
func (t *Tree) SetEntry(index uint64, data []byte) error {
	if len(data) != common.HashLength {
		return errors.Wrapf(ErrInvalidEntryLength, "got %d bytes", len(data))
	}
	address, ok := t.LeafAddress(index)
	if !ok {
		return errors.Wrapf(ErrOutOfRange, "index %d, capacity %d", index, t.Capacity())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.store(address, common.BytesToHash(data))
	for address > 0 {
		parent := (address - 1) / 2
		t.store(parent, Combine(t.node(2*parent+1), t.node(2*parent+2)))
		address = parent
	}
	if index+1 > t.populated {
		t.populated = index + 1
	}
	return nil
}

func (t *Tree) store(address uint64, h common.Hash) {
	if h == t.zeros[t.height(address)] {
		delete(t.nodes, address)
		return
	}
	t.nodes[address] = h
}

// Entry returns the leaf at index, ZeroEntry if it was never set.
func (t *Tree) Entry(index uint64) (common.Hash, error) {
	address, ok := t.LeafAddress(index)
	if !ok {
		return common.Hash{}, errors.Wrapf(ErrOutOfRange, "index %d, capacity %d", index, t.Capacity())
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(address), nil
}

// Root returns the current root digest.
func (t *Tree) Root() common.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.node(0)
}

// Leaf is a populated leaf and its index.
type Leaf struct {
	Index uint64
	Value common.Hash
}

// Leaves returns every stored non-zero leaf in index order.
func (t *Tree) Leaves() []Leaf {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Leaf
	for address, h := range t.nodes {
		if index, ok := t.AddressToIndex(address); ok {
			out = append(out, Leaf{Index: index, Value: h})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
