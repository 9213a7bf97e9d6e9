// ceremony.go - Digests and signatures exchanged with an MPC coordinator.
//
// Contributions are identified by the SHA-512 digest of the contribution
// file and signed with ECDSA over P-521. Signing keys are stored as SEC1 DER,
// verification keys travel as hex encoded PKIX DER, and signatures as hex of
// the fixed-width r||s concatenation.
package ceremony

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"encoding/hex"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	DigestLength = sha512.Size
	// scalarLength is the byte width of a P-521 scalar.
	scalarLength    = 66
	SignatureLength = 2 * scalarLength
)

var (
	ErrDigestFormat    = errors.New("ceremony: invalid digest encoding")
	ErrKeyFormat       = errors.New("ceremony: invalid key encoding")
	ErrSignatureFormat = errors.New("ceremony: invalid signature encoding")
)

func curve() elliptic.Curve { return elliptic.P521() }

// Digest is a SHA-512 digest.
type Digest [DigestLength]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ImportDigest parses exactly 128 hex characters.
func ImportDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != 2*DigestLength {
		return d, errors.Wrapf(ErrDigestFormat, "unexpected digest string length: %d", len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, errors.Wrap(ErrDigestFormat, err.Error())
	}
	return d, nil
}

// DigestReader hashes everything read from r.
func DigestReader(r io.Reader) (Digest, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, errors.Wrap(err, "hash input")
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// ComputeFileDigest hashes the file at path without loading it whole.
func ComputeFileDigest(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.Wrap(err, "open contribution")
	}
	defer f.Close()
	return DigestReader(f)
}

func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	sk, err := ecdsa.GenerateKey(curve(), rand.Reader)
	return sk, errors.Wrap(err, "generate signing key")
}

func ExportSigningKey(sk *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(sk)
	return der, errors.Wrap(err, "encode signing key")
}

func ImportSigningKey(der []byte) (*ecdsa.PrivateKey, error) {
	sk, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(ErrKeyFormat, err.Error())
	}
	if sk.Curve != curve() {
		return nil, errors.Wrapf(ErrKeyFormat, "curve %s", sk.Curve.Params().Name)
	}
	return sk, nil
}

// SaveSigningKey writes the DER key readable only by the owner.
func SaveSigningKey(path string, sk *ecdsa.PrivateKey) error {
	der, err := ExportSigningKey(sk)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "create key directory")
	}
	return errors.Wrap(os.WriteFile(path, der, 0600), "write signing key")
}

func LoadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read signing key")
	}
	return ImportSigningKey(der)
}

// ExportVerificationKey returns the hex PKIX encoding of vk.
func ExportVerificationKey(vk *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(vk)
	if err != nil {
		return "", errors.Wrap(err, "encode verification key")
	}
	return hex.EncodeToString(der), nil
}

func ImportVerificationKey(s string) (*ecdsa.PublicKey, error) {
	der, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(ErrKeyFormat, err.Error())
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(ErrKeyFormat, err.Error())
	}
	vk, ok := key.(*ecdsa.PublicKey)
	if !ok || vk.Curve != curve() {
		return nil, errors.Wrap(ErrKeyFormat, "not a P-521 ECDSA key")
	}
	return vk, nil
}

// Signature is r||s, each big-endian and scalarLength bytes wide.
type Signature [SignatureLength]byte

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

func ImportSignature(s string) (Signature, error) {
	var sig Signature
	if len(s) != 2*SignatureLength {
		return sig, errors.Wrapf(ErrSignatureFormat, "unexpected signature string length: %d", len(s))
	}
	if _, err := hex.Decode(sig[:], []byte(s)); err != nil {
		return Signature{}, errors.Wrap(ErrSignatureFormat, err.Error())
	}
	return sig, nil
}

// Sign signs the digest itself; it is not hashed again.
func Sign(sk *ecdsa.PrivateKey, d Digest) (Signature, error) {
	r, s, err := ecdsa.Sign(rand.Reader, sk, d[:])
	if err != nil {
		return Signature{}, errors.Wrap(err, "sign digest")
	}
	var sig Signature
	r.FillBytes(sig[:scalarLength])
	s.FillBytes(sig[scalarLength:])
	return sig, nil
}

func Verify(vk *ecdsa.PublicKey, d Digest, sig Signature) bool {
	r := new(big.Int).SetBytes(sig[:scalarLength])
	s := new(big.Int).SetBytes(sig[scalarLength:])
	return ecdsa.Verify(vk, d[:], r, s)
}
