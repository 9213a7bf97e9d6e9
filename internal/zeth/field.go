// field.go - Canonical encodings of BN254 scalars and 32-byte digests.

package zeth

import (
	"encoding/hex"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrFieldEncoding = errors.New("zeth: invalid field element encoding")
	ErrDigestFormat  = errors.New("zeth: invalid digest encoding")
)

// FieldElement is a canonical big-endian encoding of a BN254 scalar.
type FieldElement [fr.Bytes]byte

// RandomFieldElement draws a uniform scalar.
func RandomFieldElement() (FieldElement, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return FieldElement{}, errors.Wrap(err, "sample field element")
	}
	return e.Bytes(), nil
}

// FieldElementFromUint64 encodes a small integer.
func FieldElementFromUint64(v uint64) FieldElement {
	var e fr.Element
	e.SetUint64(v)
	return e.Bytes()
}

// FieldElementFromBytes rejects inputs of the wrong length and values not
// below the field modulus.
func FieldElementFromBytes(b []byte) (FieldElement, error) {
	if len(b) != fr.Bytes {
		return FieldElement{}, errors.Wrapf(ErrFieldEncoding, "length %d", len(b))
	}
	var e fr.Element
	if err := e.SetBytesCanonical(b); err != nil {
		return FieldElement{}, errors.Wrap(ErrFieldEncoding, err.Error())
	}
	var out FieldElement
	copy(out[:], b)
	return out, nil
}

// ParseFieldElement decodes 64 hex characters.
func ParseFieldElement(s string) (FieldElement, error) {
	if len(s) != 2*fr.Bytes {
		return FieldElement{}, errors.Wrapf(ErrFieldEncoding, "hex length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return FieldElement{}, errors.Wrap(ErrFieldEncoding, err.Error())
	}
	return FieldElementFromBytes(b)
}

// Element returns the value as a field element.
func (f FieldElement) Element() fr.Element {
	var e fr.Element
	e.SetBytes(f[:])
	return e
}

func (f FieldElement) String() string { return hex.EncodeToString(f[:]) }

func (f FieldElement) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FieldElement) UnmarshalText(text []byte) error {
	v, err := ParseFieldElement(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// DigestHex is the canonical text form of a digest: lowercase hex, no prefix.
func DigestHex(d common.Hash) string { return hex.EncodeToString(d[:]) }

// ParseDigest accepts exactly 64 lowercase hex characters.
func ParseDigest(s string) (common.Hash, error) {
	if len(s) != 2*common.HashLength {
		return common.Hash{}, errors.Wrapf(ErrDigestFormat, "hex length %d", len(s))
	}
	if strings.ToLower(s) != s {
		return common.Hash{}, errors.Wrap(ErrDigestFormat, "hex must be lowercase")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return common.Hash{}, errors.Wrap(ErrDigestFormat, err.Error())
	}
	return common.BytesToHash(b), nil
}

func elementToDigest(e fr.Element) common.Hash { return common.Hash(e.Bytes()) }
