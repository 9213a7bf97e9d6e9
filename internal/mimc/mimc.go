// mimc.go - MiMC7 block cipher and Miyaguchi-Preneel compression over the BN254 scalar field.
//
// The tree combine function and the note commitment scheme are both built on
// the compression function defined here. The same constants are consumed by
// the in-circuit gadget in internal/prover, so any change here is a breaking
// change for stored trees and commitments.

package mimc

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// Rounds is the number of MiMC7 rounds.
	Rounds = 91
	// Seed generates the round constants by iterated keccak256.
	Seed = "clearmatics_mt_seed"
	// Size is the byte width of a digest.
	Size = fr.Bytes
)

var roundConstants = deriveRoundConstants()

// deriveRoundConstants returns c[0] = 0 and c[i] = keccak256^(i+1)(Seed) mod p.
func deriveRoundConstants() [Rounds]fr.Element {
	var cs [Rounds]fr.Element
	h := crypto.Keccak256([]byte(Seed))
	for i := 1; i < Rounds; i++ {
		h = crypto.Keccak256(h)
		cs[i].SetBytes(h)
	}
	return cs
}

// RoundConstants returns the round constants as integers, for use in circuits.
func RoundConstants() []*big.Int {
	out := make([]*big.Int, Rounds)
	for i := range roundConstants {
		out[i] = roundConstants[i].BigInt(new(big.Int))
	}
	return out
}

// Encrypt runs the MiMC7 permutation on msg keyed by key.
func Encrypt(msg, key *fr.Element) fr.Element {
	var x, t, t2, t4 fr.Element
	x.Set(msg)
	for i := range roundConstants {
		t.Add(&x, key)
		t.Add(&t, &roundConstants[i])
		t2.Square(&t)
		t4.Square(&t2)
		x.Mul(&t4, &t2)
		x.Mul(&x, &t)
	}
	x.Add(&x, key)
	return x
}

// MiyaguchiPreneel compresses (x, y) as E_y(x) + x + y.
func MiyaguchiPreneel(x, y *fr.Element) fr.Element {
	out := Encrypt(x, y)
	out.Add(&out, x)
	out.Add(&out, y)
	return out
}

// HashElements folds xs into iv with the compression function:
// h_0 = iv, h_{i+1} = MP(h_i, x_i).
func HashElements(iv fr.Element, xs ...fr.Element) fr.Element {
	h := iv
	for i := range xs {
		h = MiyaguchiPreneel(&h, &xs[i])
	}
	return h
}

// Combine hashes two 32-byte values. Inputs are interpreted big-endian and
// reduced modulo the field order.
func Combine(left, right [Size]byte) [Size]byte {
	var l, r fr.Element
	l.SetBytes(left[:])
	r.SetBytes(right[:])
	out := MiyaguchiPreneel(&l, &r)
	return out.Bytes()
}

// DomainTag maps a label to a field element used as a hash IV.
func DomainTag(label string) fr.Element {
	var e fr.Element
	e.SetBytes(crypto.Keccak256([]byte(label)))
	return e
}
