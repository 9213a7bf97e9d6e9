// notekey.go - Storage keys of wallet notes.
package wallet

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"zethclient/internal/zeth"
)

const (
	notePrefix   = "note_"
	addressWidth = 10
)

var ErrNoteKeyFormat = errors.New("wallet: malformed note key")

// NoteKey names a stored note. Keys of one user sort by tree address.
type NoteKey struct {
	User            string
	Address         uint64
	ShortCommitment string
	Value           zeth.EtherValue
}

func keyFor(user string, desc zeth.NoteDescription) NoteKey {
	return NoteKey{
		User:            user,
		Address:         desc.Address,
		ShortCommitment: desc.ShortCommitment(),
		Value:           zeth.FromZethUnits(desc.Note.Value),
	}
}

// String renders note_<user>_<address>_<short commitment>_<ether>.
func (k NoteKey) String() string {
	return fmt.Sprintf("%s%s_%0*d_%s_%s", notePrefix, k.User, addressWidth, k.Address, k.ShortCommitment, k.Value)
}

func userPrefix(user string) string { return notePrefix + user + "_" }

// ParseNoteKey is the inverse of NoteKey.String.
func ParseNoteKey(s string) (NoteKey, error) {
	rest, ok := strings.CutPrefix(s, notePrefix)
	if !ok {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: missing prefix", s)
	}
	parts := strings.Split(rest, "_")
	if len(parts) != 4 {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: expected 4 fields, got %d", s, len(parts))
	}
	user, addr, cm, value := parts[0], parts[1], parts[2], parts[3]
	if user == "" {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: empty user", s)
	}
	if len(addr) != addressWidth {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: address width", s)
	}
	address, err := strconv.ParseUint(addr, 10, 64)
	if err != nil {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: %v", s, err)
	}
	if len(cm) != 2*zeth.ShortCommitmentLength {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: short commitment length", s)
	}
	if _, err := hex.DecodeString(cm); err != nil || strings.ToLower(cm) != cm {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: short commitment is not lowercase hex", s)
	}
	ether, err := zeth.ParseEther(value)
	if err != nil {
		return NoteKey{}, errors.Wrapf(ErrNoteKeyFormat, "%q: %v", s, err)
	}
	return NoteKey{User: user, Address: address, ShortCommitment: cm, Value: ether}, nil
}
