// address.go - Spending and encryption key material of a zeth address.
//
// A secret address holds the spending key a_sk, from which the paying key
// a_pk = H(a_sk) is derived, and an X25519 secret used to receive notes.

package zeth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

var ErrAddressFormat = errors.New("zeth: invalid address encoding")

// EncryptionKeyLength is the byte length of both encryption keys.
const EncryptionKeyLength = 32

type (
	EncryptionSecretKey [EncryptionKeyLength]byte
	EncryptionPublicKey [EncryptionKeyLength]byte
)

// GenerateEncryptionSecretKey draws a fresh X25519 scalar.
func GenerateEncryptionSecretKey() (EncryptionSecretKey, error) {
	var sk EncryptionSecretKey
	if _, err := rand.Read(sk[:]); err != nil {
		return sk, errors.Wrap(err, "generate encryption key")
	}
	return sk, nil
}

// PublicKey derives the matching public key.
func (sk EncryptionSecretKey) PublicKey() (EncryptionPublicKey, error) {
	var pk EncryptionPublicKey
	out, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return pk, errors.Wrap(err, "derive encryption public key")
	}
	copy(pk[:], out)
	return pk, nil
}

func (sk EncryptionSecretKey) String() string { return hex.EncodeToString(sk[:]) }
func (pk EncryptionPublicKey) String() string { return hex.EncodeToString(pk[:]) }

func parseKey32(s string) ([EncryptionKeyLength]byte, error) {
	var out [EncryptionKeyLength]byte
	if len(s) != 2*EncryptionKeyLength {
		return out, errors.Wrapf(ErrAddressFormat, "key hex length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, errors.Wrap(ErrAddressFormat, err.Error())
	}
	copy(out[:], b)
	return out, nil
}

// ParseEncryptionPublicKey decodes a 64-character hex key.
func ParseEncryptionPublicKey(s string) (EncryptionPublicKey, error) {
	k, err := parseKey32(s)
	return EncryptionPublicKey(k), err
}

// ParseEncryptionSecretKey decodes a 64-character hex key.
func ParseEncryptionSecretKey(s string) (EncryptionSecretKey, error) {
	k, err := parseKey32(s)
	return EncryptionSecretKey(k), err
}

func (pk EncryptionPublicKey) MarshalText() ([]byte, error) { return []byte(pk.String()), nil }

func (pk *EncryptionPublicKey) UnmarshalText(text []byte) error {
	k, err := ParseEncryptionPublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = k
	return nil
}

func (sk EncryptionSecretKey) MarshalText() ([]byte, error) { return []byte(sk.String()), nil }

func (sk *EncryptionSecretKey) UnmarshalText(text []byte) error {
	k, err := ParseEncryptionSecretKey(string(text))
	if err != nil {
		return err
	}
	*sk = k
	return nil
}

// SecretAddress is everything a holder needs to receive and spend notes.
type SecretAddress struct {
	ASK FieldElement        `json:"a_sk"`
	KSK EncryptionSecretKey `json:"k_sk"`
}

// PublicAddress is what a sender needs to pay a holder.
type PublicAddress struct {
	APK FieldElement
	KPK EncryptionPublicKey
}

// GenerateSecretAddress draws a fresh spending key and encryption key.
func GenerateSecretAddress() (SecretAddress, error) {
	ask, err := RandomFieldElement()
	if err != nil {
		return SecretAddress{}, err
	}
	ksk, err := GenerateEncryptionSecretKey()
	if err != nil {
		return SecretAddress{}, err
	}
	return SecretAddress{ASK: ask, KSK: ksk}, nil
}

// PublicAddress derives the public half.
func (s SecretAddress) PublicAddress() (PublicAddress, error) {
	kpk, err := s.KSK.PublicKey()
	if err != nil {
		return PublicAddress{}, err
	}
	return PublicAddress{APK: ComputePayingKey(s.ASK), KPK: kpk}, nil
}

// String encodes the address as "<a_pk>:<k_pk>".
func (a PublicAddress) String() string {
	return a.APK.String() + ":" + a.KPK.String()
}

// ParsePublicAddress is the inverse of PublicAddress.String.
func ParsePublicAddress(s string) (PublicAddress, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return PublicAddress{}, errors.Wrap(ErrAddressFormat, "expected <a_pk>:<k_pk>")
	}
	apk, err := ParseFieldElement(parts[0])
	if err != nil {
		return PublicAddress{}, err
	}
	kpk, err := ParseEncryptionPublicKey(parts[1])
	if err != nil {
		return PublicAddress{}, err
	}
	return PublicAddress{APK: apk, KPK: kpk}, nil
}

// SaveSecretAddress writes the address as JSON readable only by the owner.
func SaveSecretAddress(path string, addr SecretAddress) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "create key directory")
	}
	data, err := json.MarshalIndent(addr, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode secret address")
	}
	return errors.Wrap(os.WriteFile(path, data, 0600), "write secret address")
}

// LoadSecretAddress reads a file written by SaveSecretAddress.
func LoadSecretAddress(path string) (SecretAddress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SecretAddress{}, errors.Wrap(err, "read secret address")
	}
	var addr SecretAddress
	if err := json.Unmarshal(data, &addr); err != nil {
		return SecretAddress{}, errors.Wrapf(ErrAddressFormat, "%s: %v", path, err)
	}
	return addr, nil
}
