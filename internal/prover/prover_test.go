package prover

import (
	"testing"

	"github.com/consensys/gnark/test"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zethclient/internal/merkle"
	"zethclient/internal/zeth"
)

// spendWitness puts a fresh note at index of a tree of the given depth
// alongside a few unrelated leaves and returns the witness spending it.
func spendWitness(t *testing.T, depth int, index uint64) Witness {
	t.Helper()
	ask, err := zeth.RandomFieldElement()
	require.NoError(t, err)
	note, err := zeth.NewNote(zeth.ComputePayingKey(ask), 1234)
	require.NoError(t, err)

	tree, err := merkle.New(depth)
	require.NoError(t, err)
	for i := uint64(0); i < tree.Capacity(); i += 3 {
		require.NoError(t, tree.SetEntry(i, common.Hash{31: byte(i + 1)}.Bytes()))
	}
	cm := zeth.ComputeCommitment(note)
	require.NoError(t, tree.SetEntry(index, cm[:]))

	hsig, err := zeth.RandomFieldElement()
	require.NoError(t, err)
	return Witness{
		PublicInputs: PublicInputs{
			Root:      tree.Root(),
			Nullifier: zeth.ComputeNullifier(note, ask),
			HSig:      common.Hash(hsig),
			SigTag:    zeth.ComputeSignatureTag(ask, hsig.Element()),
		},
		ASK:  ask,
		Note: note,
		Path: tree.Path(index),
	}
}

func TestCircuitMatchesNativeHashes(t *testing.T) {
	const depth = 4
	for _, index := range []uint64{0, 5, 15} {
		w := spendWitness(t, depth, index)
		assignment, err := w.assignment(depth)
		require.NoError(t, err)
		assert.NoError(t, test.IsSolved(NewMembershipCircuit(depth), assignment, curve.ScalarField()), "index %d", index)
	}
}

func TestCircuitRejectsWrongWitness(t *testing.T) {
	const depth = 4
	for name, tamper := range map[string]func(*Witness){
		"root":      func(w *Witness) { w.Root[31] ^= 1 },
		"nullifier": func(w *Witness) { w.Nullifier[31] ^= 1 },
		"sig tag":   func(w *Witness) { w.SigTag[31] ^= 1 },
		"value":     func(w *Witness) { w.Note.Value++ },
		"direction": func(w *Witness) { w.Path.Bits[0] = !w.Path.Bits[0] },
		"key": func(w *Witness) {
			other, _ := zeth.RandomFieldElement()
			w.ASK = other
		},
	} {
		w := spendWitness(t, depth, 6)
		tamper(&w)
		assignment, err := w.assignment(depth)
		require.NoError(t, err)
		assert.Error(t, test.IsSolved(NewMembershipCircuit(depth), assignment, curve.ScalarField()), name)
	}
}

func TestPathLengthMustMatchDepth(t *testing.T) {
	w := spendWitness(t, 4, 1)
	_, err := w.assignment(3)
	assert.ErrorIs(t, err, ErrPathLength)
}

func TestPublicInputsEncoding(t *testing.T) {
	w := spendWitness(t, 2, 1)
	a, err := w.PublicInputs.Encode()
	require.NoError(t, err)
	b, err := w.PublicInputs.Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	w.Nullifier[31] ^= 1
	c, err := w.PublicInputs.Encode()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGroth16EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	const depth = 2
	keyDir := t.TempDir()

	g, err := Setup(depth, keyDir)
	require.NoError(t, err)
	assert.Equal(t, depth, g.Depth())

	w := spendWitness(t, depth, 2)
	proof, err := g.Prove(w)
	require.NoError(t, err)
	require.NoError(t, g.Verify(proof))

	forged := w.PublicInputs
	forged.Nullifier[31] ^= 1
	forgedInputs, err := forged.Encode()
	require.NoError(t, err)
	err = g.Verify(Proof{Proof: proof.Proof, PublicInputs: forgedInputs})
	assert.ErrorIs(t, err, ErrInvalidProof)

	err = g.Verify(Proof{Proof: []byte("garbage"), PublicInputs: proof.PublicInputs})
	assert.ErrorIs(t, err, ErrInvalidProof)

	// Keys are reloaded from disk.
	again, err := Setup(depth, keyDir)
	require.NoError(t, err)
	require.NoError(t, again.Verify(proof))

	vk1, err := g.VerifyingKeyBytes()
	require.NoError(t, err)
	vk2, err := again.VerifyingKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, vk1, vk2)

	_, err = Setup(0, "")
	assert.ErrorIs(t, err, merkle.ErrInvalidDepth)
}
