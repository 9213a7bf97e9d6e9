// Package otschnorr implements a one-time Schnorr-style signature over the
// BN254 G1 group.
//
// A key pair signs exactly one message. Signing two different messages with
// the same secret key reveals it: from σ1 = y + c1·x and σ2 = y + c2·x
// anyone recovers x.
package otschnorr

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
)

// MessageLength is the only accepted message size; longer data must be
// hashed by the caller.
const MessageLength = 32

const (
	pointLength = 2 * fp.Bytes
	// VerificationKeyLength is the size of VerificationKey.Bytes.
	VerificationKeyLength = 2 * pointLength
)

var (
	ErrMessageLength   = errors.New("otschnorr: message must be 32 bytes")
	ErrInvalidPoint    = errors.New("otschnorr: point not on curve or at infinity")
	ErrSignatureFormat = errors.New("otschnorr: invalid signature encoding")
	ErrKeyFormat       = errors.New("otschnorr: invalid verification key encoding")
)

var g1 bn254.G1Jac

func init() {
	g1, _, _, _ = bn254.Generators()
}

// VerificationKey is (X, Y) = (x·G, y·G).
type VerificationKey struct {
	X bn254.G1Affine
	Y bn254.G1Affine
}

// SecretKey keeps x together with (y, Y).
type SecretKey struct {
	X      fr.Element
	Y      fr.Element
	YPoint bn254.G1Affine
}

// KeyPair is a fresh one-time key.
type KeyPair struct {
	SK SecretKey
	VK VerificationKey
}

// Signature is σ as a 32-byte big-endian scalar.
type Signature [fr.Bytes]byte

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

// ParseSignature decodes 64 hex characters.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(sig) {
		return sig, errors.Wrapf(ErrSignatureFormat, "%q", s)
	}
	copy(sig[:], b)
	return sig, nil
}

func mulBase(s *fr.Element) bn254.G1Affine {
	var j bn254.G1Jac
	j.ScalarMultiplication(&g1, s.BigInt(new(big.Int)))
	var p bn254.G1Affine
	p.FromJacobian(&j)
	return p
}

// Generate draws a fresh key pair.
func Generate() (KeyPair, error) {
	var x, y fr.Element
	if _, err := x.SetRandom(); err != nil {
		return KeyPair{}, errors.Wrap(err, "sample x")
	}
	if _, err := y.SetRandom(); err != nil {
		return KeyPair{}, errors.Wrap(err, "sample y")
	}
	X, Y := mulBase(&x), mulBase(&y)
	return KeyPair{
		SK: SecretKey{X: x, Y: y, YPoint: Y},
		VK: VerificationKey{X: X, Y: Y},
	}, nil
}

// challenge computes c = sha256(Y.x || Y.y || m) mod r.
func challenge(Y *bn254.G1Affine, m []byte) fr.Element {
	yx, yy := Y.X.Bytes(), Y.Y.Bytes()
	h := sha256.New()
	h.Write(yx[:])
	h.Write(yy[:])
	h.Write(m)
	var c fr.Element
	c.SetBytes(h.Sum(nil))
	return c
}

// Sign returns σ = y + c·x.
func Sign(sk SecretKey, m []byte) (Signature, error) {
	if len(m) != MessageLength {
		return Signature{}, errors.Wrapf(ErrMessageLength, "got %d bytes", len(m))
	}
	c := challenge(&sk.YPoint, m)
	var sigma fr.Element
	sigma.Mul(&c, &sk.X)
	sigma.Add(&sigma, &sk.Y)
	return sigma.Bytes(), nil
}

// Verify checks σ·G == Y + c·X. A wrong signature returns false; only a
// malformed message or key is an error.
func Verify(vk VerificationKey, m []byte, sig Signature) (bool, error) {
	if len(m) != MessageLength {
		return false, errors.Wrapf(ErrMessageLength, "got %d bytes", len(m))
	}
	if err := vk.check(); err != nil {
		return false, err
	}
	var sigma fr.Element
	if err := sigma.SetBytesCanonical(sig[:]); err != nil {
		return false, nil
	}
	c := challenge(&vk.Y, m)

	var lhs bn254.G1Jac
	lhs.ScalarMultiplication(&g1, sigma.BigInt(new(big.Int)))

	var X, rhs, cx bn254.G1Jac
	X.FromAffine(&vk.X)
	cx.ScalarMultiplication(&X, c.BigInt(new(big.Int)))
	rhs.FromAffine(&vk.Y)
	rhs.AddAssign(&cx)

	return lhs.Equal(&rhs), nil
}

func (vk VerificationKey) check() error {
	for _, p := range []*bn254.G1Affine{&vk.X, &vk.Y} {
		if p.IsInfinity() || !p.IsOnCurve() || !p.IsInSubGroup() {
			return ErrInvalidPoint
		}
	}
	return nil
}

// Bytes encodes X.x || X.y || Y.x || Y.y, each 32-byte big-endian.
func (vk VerificationKey) Bytes() []byte {
	out := make([]byte, 0, VerificationKeyLength)
	for _, p := range []*bn254.G1Affine{&vk.X, &vk.Y} {
		x, y := p.X.Bytes(), p.Y.Bytes()
		out = append(out, x[:]...)
		out = append(out, y[:]...)
	}
	return out
}

// ParseVerificationKey decodes the output of Bytes and checks both points.
func ParseVerificationKey(b []byte) (VerificationKey, error) {
	var vk VerificationKey
	if len(b) != VerificationKeyLength {
		return vk, errors.Wrapf(ErrKeyFormat, "length %d", len(b))
	}
	for i, p := range []*bn254.G1Affine{&vk.X, &vk.Y} {
		off := i * pointLength
		if err := p.X.SetBytesCanonical(b[off : off+fp.Bytes]); err != nil {
			return vk, errors.Wrap(ErrKeyFormat, err.Error())
		}
		if err := p.Y.SetBytesCanonical(b[off+fp.Bytes : off+pointLength]); err != nil {
			return vk, errors.Wrap(ErrKeyFormat, err.Error())
		}
	}
	if err := vk.check(); err != nil {
		return vk, err
	}
	return vk, nil
}

// HashVerificationKey maps the key to a scalar, h_sig, that a proof can bind.
func HashVerificationKey(vk VerificationKey) fr.Element {
	sum := sha256.Sum256(vk.Bytes())
	var h fr.Element
	h.SetBytes(sum[:])
	return h
}
