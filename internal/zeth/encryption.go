// encryption.go - Sender-authenticated note transport using NaCl box.
//
// Ciphertexts are nonce || box(plaintext). Nonces are drawn at random for
// every message.

package zeth

import (
	"crypto/rand"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

const nonceLength = 24

// ErrDecryption means the ciphertext was not produced for this key pair or
// was tampered with. Wallets see it for every note addressed to someone else.
var ErrDecryption = errors.New("zeth: decryption failed")

// Encrypt seals plaintext for receiver, authenticated by the sender's key.
func Encrypt(plaintext []byte, receiver EncryptionPublicKey, sender EncryptionSecretKey) ([]byte, error) {
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	pk := [EncryptionKeyLength]byte(receiver)
	sk := [EncryptionKeyLength]byte(sender)
	return box.Seal(nonce[:], plaintext, &nonce, &pk, &sk), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(ciphertext []byte, sender EncryptionPublicKey, receiver EncryptionSecretKey) ([]byte, error) {
	if len(ciphertext) < nonceLength+box.Overhead {
		return nil, errors.Wrapf(ErrDecryption, "ciphertext too short (%d bytes)", len(ciphertext))
	}
	var nonce [nonceLength]byte
	copy(nonce[:], ciphertext[:nonceLength])
	pk := [EncryptionKeyLength]byte(sender)
	sk := [EncryptionKeyLength]byte(receiver)
	plaintext, ok := box.Open(nil, ciphertext[nonceLength:], &nonce, &pk, &sk)
	if !ok {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// EncryptNote serializes and seals a note.
func EncryptNote(note Note, receiver EncryptionPublicKey, sender EncryptionSecretKey) ([]byte, error) {
	plaintext, err := json.Marshal(note)
	if err != nil {
		return nil, errors.Wrap(err, "encode note")
	}
	return Encrypt(plaintext, receiver, sender)
}

// DecryptNote opens and parses a note. A successful decryption of bytes
// that are not a note returns ErrNoteFormat.
func DecryptNote(ciphertext []byte, sender EncryptionPublicKey, receiver EncryptionSecretKey) (Note, error) {
	plaintext, err := Decrypt(ciphertext, sender, receiver)
	if err != nil {
		return Note{}, err
	}
	return ParseNote(plaintext)
}
