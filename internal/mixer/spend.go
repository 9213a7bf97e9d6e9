// spend.go - Assembly and checking of note spends.
//
// A spend carries a membership proof for a note and a one-time signature
// over that proof. The proof binds the signature key through h_sig, so the
// proof cannot be reused with another key.
package mixer

import (
	"bytes"
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"zethclient/internal/merkle"
	"zethclient/internal/otschnorr"
	"zethclient/internal/prover"
	"zethclient/internal/zeth"
)

var (
	ErrNotInTree    = errors.New("mixer: note commitment is not in the tree")
	ErrNotOwner     = errors.New("mixer: spending key does not own the note")
	ErrInvalidSpend = errors.New("mixer: invalid spend")
)

// ProofSystem produces and checks opaque membership proofs.
// *prover.Groth16 satisfies it.
type ProofSystem interface {
	Prove(w prover.Witness) (prover.Proof, error)
	Verify(p prover.Proof) error
}

// Tree is the read side of a Merkle tree.
type Tree interface {
	Entry(index uint64) (common.Hash, error)
	Path(index uint64) merkle.Path
	Root() common.Hash
}

type Spend struct {
	Nullifier       common.Hash
	Root            common.Hash
	SigTag          common.Hash
	Proof           prover.Proof
	VerificationKey otschnorr.VerificationKey
	Signature       otschnorr.Signature
}

func (s Spend) publicInputs() prover.PublicInputs {
	hsig := otschnorr.HashVerificationKey(s.VerificationKey)
	return prover.PublicInputs{
		Root:      s.Root,
		Nullifier: s.Nullifier,
		HSig:      common.Hash(hsig.Bytes()),
		SigTag:    s.SigTag,
	}
}

// signedMessage is sha256(vk || proof || public inputs).
func signedMessage(vk otschnorr.VerificationKey, p prover.Proof) [sha256.Size]byte {
	h := sha256.New()
	h.Write(vk.Bytes())
	h.Write(p.Proof)
	h.Write(p.PublicInputs)
	var m [sha256.Size]byte
	copy(m[:], h.Sum(nil))
	return m
}

// BuildSpend proves that desc is in tree under its current root and signs
// the proof with a key used for this spend only.
func BuildSpend(ps ProofSystem, desc zeth.NoteDescription, ask zeth.FieldElement, tree Tree) (Spend, error) {
	if zeth.ComputePayingKey(ask) != desc.Note.APK {
		return Spend{}, ErrNotOwner
	}
	if err := zeth.VerifyCommitment(desc.Note, desc.Commitment); err != nil {
		return Spend{}, err
	}

	path := tree.Path(desc.Address)
	if path.Empty() {
		return Spend{}, errors.Wrapf(ErrNotInTree, "address %d outside the tree", desc.Address)
	}
	if leaf, err := tree.Entry(desc.Address); err != nil || leaf != desc.Commitment {
		return Spend{}, errors.Wrapf(ErrNotInTree, "address %d holds another value", desc.Address)
	}
	root := tree.Root()
	if path.ComputeRoot(desc.Commitment) != root {
		return Spend{}, errors.Wrapf(ErrNotInTree, "path of address %d does not reach the root", desc.Address)
	}

	kp, err := otschnorr.Generate()
	if err != nil {
		return Spend{}, err
	}
	spend := Spend{
		Nullifier:       zeth.ComputeNullifier(desc.Note, ask),
		Root:            root,
		VerificationKey: kp.VK,
	}
	hsig := otschnorr.HashVerificationKey(kp.VK)
	spend.SigTag = zeth.ComputeSignatureTag(ask, hsig)

	spend.Proof, err = ps.Prove(prover.Witness{
		PublicInputs: spend.publicInputs(),
		ASK:          ask,
		Note:         desc.Note,
		Path:         path,
	})
	if err != nil {
		return Spend{}, errors.Wrap(err, "prove membership")
	}

	m := signedMessage(kp.VK, spend.Proof)
	if spend.Signature, err = otschnorr.Sign(kp.SK, m[:]); err != nil {
		return Spend{}, err
	}
	return spend, nil
}

// VerifySpend checks the signature, that the proof commits to the spend's
// public values, and the proof itself.
func VerifySpend(ps ProofSystem, s Spend) error {
	m := signedMessage(s.VerificationKey, s.Proof)
	ok, err := otschnorr.Verify(s.VerificationKey, m[:], s.Signature)
	if err != nil {
		return errors.Wrap(ErrInvalidSpend, err.Error())
	}
	if !ok {
		return errors.Wrap(ErrInvalidSpend, "bad one-time signature")
	}

	want, err := s.publicInputs().Encode()
	if err != nil {
		return err
	}
	if !bytes.Equal(want, s.Proof.PublicInputs) {
		return errors.Wrap(ErrInvalidSpend, "proof is for other public inputs")
	}
	if err := ps.Verify(s.Proof); err != nil {
		return errors.Wrap(ErrInvalidSpend, err.Error())
	}
	return nil
}
