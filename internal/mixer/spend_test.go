package mixer

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zethclient/internal/merkle"
	"zethclient/internal/prover"
	"zethclient/internal/zeth"
)

// fakeProofSystem checks the witness natively and "proves" by hashing the
// public inputs.
type fakeProofSystem struct {
	proved []prover.Witness
}

func (f *fakeProofSystem) Prove(w prover.Witness) (prover.Proof, error) {
	cm := zeth.ComputeCommitment(w.Note)
	if w.Path.ComputeRoot(cm) != w.Root {
		return prover.Proof{}, errors.New("witness path does not reach root")
	}
	if zeth.ComputeNullifier(w.Note, w.ASK) != w.Nullifier {
		return prover.Proof{}, errors.New("witness nullifier")
	}
	hsig := zeth.FieldElement(w.HSig)
	if zeth.ComputeSignatureTag(w.ASK, hsig.Element()) != w.SigTag {
		return prover.Proof{}, errors.New("witness signature tag")
	}
	f.proved = append(f.proved, w)
	public, err := w.PublicInputs.Encode()
	if err != nil {
		return prover.Proof{}, err
	}
	sum := sha256.Sum256(public)
	return prover.Proof{Proof: sum[:], PublicInputs: public}, nil
}

func (f *fakeProofSystem) Verify(p prover.Proof) error {
	sum := sha256.Sum256(p.PublicInputs)
	if !bytes.Equal(sum[:], p.Proof) {
		return errors.New("fake proof mismatch")
	}
	return nil
}

type owned struct {
	ask  zeth.FieldElement
	desc zeth.NoteDescription
	tree *merkle.Tree
}

func ownedNote(t *testing.T, depth int, address uint64) owned {
	t.Helper()
	ask, err := zeth.RandomFieldElement()
	require.NoError(t, err)
	note, err := zeth.NewNote(zeth.ComputePayingKey(ask), 77)
	require.NoError(t, err)
	tree, err := merkle.New(depth)
	require.NoError(t, err)
	require.NoError(t, tree.SetEntry(0, common.Hash{31: 9}.Bytes()))
	cm := zeth.ComputeCommitment(note)
	require.NoError(t, tree.SetEntry(address, cm[:]))
	return owned{ask: ask, desc: zeth.NoteDescription{Note: note, Address: address, Commitment: cm}, tree: tree}
}

func TestBuildAndVerifySpend(t *testing.T) {
	o := ownedNote(t, 4, 3)
	ps := &fakeProofSystem{}

	spend, err := BuildSpend(ps, o.desc, o.ask, o.tree)
	require.NoError(t, err)
	assert.Equal(t, o.tree.Root(), spend.Root)
	assert.Equal(t, zeth.ComputeNullifier(o.desc.Note, o.ask), spend.Nullifier)
	require.Len(t, ps.proved, 1)
	assert.EqualValues(t, 3, ps.proved[0].Path.Index)

	require.NoError(t, VerifySpend(ps, spend))

	second, err := BuildSpend(ps, o.desc, o.ask, o.tree)
	require.NoError(t, err)
	assert.Equal(t, spend.Nullifier, second.Nullifier)
	assert.NotEqual(t, spend.VerificationKey.Bytes(), second.VerificationKey.Bytes(), "fresh key per spend")
}

func TestVerifySpendRejectsTampering(t *testing.T) {
	o := ownedNote(t, 4, 3)
	ps := &fakeProofSystem{}
	spend, err := BuildSpend(ps, o.desc, o.ask, o.tree)
	require.NoError(t, err)
	other, err := BuildSpend(ps, o.desc, o.ask, o.tree)
	require.NoError(t, err)

	for name, tamper := range map[string]func(*Spend){
		"signature": func(s *Spend) { s.Signature[31] ^= 1 },
		"nullifier": func(s *Spend) { s.Nullifier[31] ^= 1 },
		"root":      func(s *Spend) { s.Root[0] ^= 1 },
		"proof":     func(s *Spend) { s.Proof.Proof = append([]byte{}, other.Proof.Proof...) },
		"key swap": func(s *Spend) {
			s.VerificationKey = other.VerificationKey
			s.Signature = other.Signature
		},
	} {
		s := spend
		s.Proof = prover.Proof{
			Proof:        append([]byte{}, spend.Proof.Proof...),
			PublicInputs: append([]byte{}, spend.Proof.PublicInputs...),
		}
		tamper(&s)
		assert.ErrorIs(t, VerifySpend(ps, s), ErrInvalidSpend, name)
	}
}

func TestBuildSpendChecks(t *testing.T) {
	ps := &fakeProofSystem{}

	o := ownedNote(t, 4, 3)
	stranger, err := zeth.RandomFieldElement()
	require.NoError(t, err)
	_, err = BuildSpend(ps, o.desc, stranger, o.tree)
	assert.ErrorIs(t, err, ErrNotOwner)

	outside := o.desc
	outside.Address = 16
	_, err = BuildSpend(ps, outside, o.ask, o.tree)
	assert.ErrorIs(t, err, ErrNotInTree)

	moved := o.desc
	moved.Address = 5
	_, err = BuildSpend(ps, moved, o.ask, o.tree)
	assert.ErrorIs(t, err, ErrNotInTree)

	garbled := o.desc
	garbled.Commitment[0] ^= 1
	_, err = BuildSpend(ps, garbled, o.ask, o.tree)
	assert.ErrorIs(t, err, zeth.ErrCommitmentMismatch)

	assert.Empty(t, ps.proved)
}

func TestSpendWithGroth16(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	g, err := prover.Setup(2, "")
	require.NoError(t, err)

	o := ownedNote(t, 2, 1)
	spend, err := BuildSpend(g, o.desc, o.ask, o.tree)
	require.NoError(t, err)
	require.NoError(t, VerifySpend(g, spend))

	spend.Nullifier[31] ^= 1
	assert.ErrorIs(t, VerifySpend(g, spend), ErrInvalidSpend)
}
