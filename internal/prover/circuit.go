// circuit.go - Membership and spend-authority circuit.
//
// The circuit proves knowledge of a note committed in the tree under Root,
// of the spending key that owns it, and that Nullifier and SigTag were
// derived from that key.
package prover

import (
	"github.com/consensys/gnark/frontend"

	"zethclient/internal/zeth"
)

// valueBits is the width of a note value.
const valueBits = 64

var (
	tagPayingKey  = tag(zeth.TagPayingKey)
	tagCommitment = tag(zeth.TagCommitment)
	tagNullifier  = tag(zeth.TagNullifier)
	tagSignature  = tag(zeth.TagSignature)
)

type MembershipCircuit struct {
	// Public inputs
	Root      frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`
	HSig      frontend.Variable `gnark:",public"`
	SigTag    frontend.Variable `gnark:",public"`

	// Private inputs
	ASK   frontend.Variable
	Rho   frontend.Variable
	TrapR frontend.Variable
	Value frontend.Variable
	Path  []frontend.Variable
	Bits  []frontend.Variable
}

// NewMembershipCircuit allocates a circuit for trees of the given depth.
func NewMembershipCircuit(depth int) *MembershipCircuit {
	return &MembershipCircuit{
		Path: make([]frontend.Variable, depth),
		Bits: make([]frontend.Variable, depth),
	}
}

func (c *MembershipCircuit) Define(api frontend.API) error {
	api.ToBinary(c.Value, valueBits)

	apk := hashElements(api, tagPayingKey, c.ASK)
	cm := hashElements(api, tagCommitment, apk, c.Rho, c.TrapR, c.Value)

	api.AssertIsEqual(c.Nullifier, hashElements(api, tagNullifier, c.ASK, c.Rho))
	api.AssertIsEqual(c.SigTag, hashElements(api, tagSignature, c.ASK, c.HSig))

	node := cm
	for k := range c.Path {
		api.AssertIsBoolean(c.Bits[k])
		left := api.Select(c.Bits[k], c.Path[k], node)
		right := api.Select(c.Bits[k], node, c.Path[k])
		node = miyaguchiPreneel(api, left, right)
	}
	api.AssertIsEqual(c.Root, node)
	return nil
}
