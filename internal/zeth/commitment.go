// commitment.go - Note commitment, nullifier and key derivations.
//
// All derivations are MiMC7 folds over canonical scalars, each under its own
// domain tag:
//
//	a_pk = H_apk(a_sk)
//	cm   = H_cm(a_pk, rho, r, value)
//	nf   = H_nf(a_sk, rho)
//	tag  = H_sig(a_sk, h_sig)
//
// The membership circuit in internal/prover recomputes exactly these.

package zeth

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"zethclient/internal/mimc"
)

var ErrCommitmentMismatch = errors.New("zeth: commitment mismatch")

var (
	TagPayingKey  = mimc.DomainTag("zeth.apk")
	TagCommitment = mimc.DomainTag("zeth.cm")
	TagNullifier  = mimc.DomainTag("zeth.nf")
	TagSignature  = mimc.DomainTag("zeth.sig")
)

// ComputePayingKey derives a_pk from the spending key.
func ComputePayingKey(ask FieldElement) FieldElement {
	apk := mimc.HashElements(TagPayingKey, ask.Element())
	return apk.Bytes()
}

// ComputeCommitment returns the leaf value of note.
func ComputeCommitment(note Note) common.Hash {
	var value fr.Element
	value.SetUint64(note.Value)
	return elementToDigest(mimc.HashElements(TagCommitment,
		note.APK.Element(), note.Rho.Element(), note.TrapR.Element(), value))
}

// ComputeNullifier returns the spend tag of note under the spending key ask.
func ComputeNullifier(note Note, ask FieldElement) common.Hash {
	return elementToDigest(mimc.HashElements(TagNullifier, ask.Element(), note.Rho.Element()))
}

// ComputeSignatureTag binds hsig, a digest of a one-time verification key, to
// the spending key.
func ComputeSignatureTag(ask FieldElement, hsig fr.Element) common.Hash {
	return elementToDigest(mimc.HashElements(TagSignature, ask.Element(), hsig))
}

// VerifyCommitment checks that note opens the observed commitment.
func VerifyCommitment(note Note, observed common.Hash) error {
	if got := ComputeCommitment(note); got != observed {
		return errors.Wrapf(ErrCommitmentMismatch, "computed %s, observed %s", ShortCommitment(got), ShortCommitment(observed))
	}
	return nil
}
