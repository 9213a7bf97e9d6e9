package merkle

import "github.com/ethereum/go-ethereum/common"

// Path authenticates one leaf against a root. Siblings and Bits are ordered
// from the leaf level up; Bits[k] is true when the node at level k is a
// right child.
type Path struct {
	Index    uint64
	Siblings []common.Hash
	Bits     []bool
}

// Empty reports whether the path cannot prove membership.
func (p Path) Empty() bool { return len(p.Siblings) == 0 }

// ComputeRoot replays the combine steps from leaf to root.
func (p Path) ComputeRoot(leaf common.Hash) common.Hash {
	h := leaf
	for k, sibling := range p.Siblings {
		if p.Bits[k] {
			h = Combine(sibling, h)
		} else {
			h = Combine(h, sibling)
		}
	}
	return h
}

// Path returns the authentication path for leaf index. An index outside the
// tree yields an empty path.
func (t *Tree) Path(index uint64) Path {
	address, ok := t.LeafAddress(index)
	if !ok {
		return Path{}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	p := Path{
		Index:    index,
		Siblings: make([]common.Hash, 0, t.depth),
		Bits:     make([]bool, 0, t.depth),
	}
	for address > 0 {
		// left children have odd addresses
		right := address%2 == 0
		sibling := address + 1
		if right {
			sibling = address - 1
		}
		p.Siblings = append(p.Siblings, t.node(sibling))
		p.Bits = append(p.Bits, right)
		address = (address - 1) / 2
	}
	return p
}
