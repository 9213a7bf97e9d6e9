// note.go - ZethNote type, its JSON form, and the wallet's note description.
//
// A note is owned by whoever knows the spending key behind APK. Its
// commitment is the leaf published in the mixer's Merkle tree.

package zeth

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var ErrNoteFormat = errors.New("zeth: malformed note")

// ShortCommitmentLength is the number of commitment bytes shown to users.
const ShortCommitmentLength = 4

// Note is the secret half of a shielded value: the paying key of its owner,
// a value in zeth units, the nullifier seed rho and the trapdoor r.
type Note struct {
	APK   FieldElement
	Value uint64
	Rho   FieldElement
	TrapR FieldElement
}

// NewNote creates a note for apk with fresh rho and trapdoor.
func NewNote(apk FieldElement, value uint64) (Note, error) {
	rho, err := RandomFieldElement()
	if err != nil {
		return Note{}, err
	}
	r, err := RandomFieldElement()
	if err != nil {
		return Note{}, err
	}
	return Note{APK: apk, Value: value, Rho: rho, TrapR: r}, nil
}

type noteJSON struct {
	APK   FieldElement `json:"apk"`
	Value string       `json:"value"`
	Rho   FieldElement `json:"rho"`
	TrapR FieldElement `json:"trap_r"`
}

// MarshalJSON encodes the value as 16 hex characters.
func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(noteJSON{
		APK:   n.APK,
		Value: fmt.Sprintf("%016x", n.Value),
		Rho:   n.Rho,
		TrapR: n.TrapR,
	})
}

func (n *Note) UnmarshalJSON(data []byte) error {
	var raw noteJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(ErrNoteFormat, err.Error())
	}
	if len(raw.Value) != 16 {
		return errors.Wrapf(ErrNoteFormat, "value must be 16 hex characters, got %d", len(raw.Value))
	}
	value, err := strconv.ParseUint(raw.Value, 16, 64)
	if err != nil {
		return errors.Wrap(ErrNoteFormat, err.Error())
	}
	*n = Note{APK: raw.APK, Value: value, Rho: raw.Rho, TrapR: raw.TrapR}
	return nil
}

// ParseNote decodes a note from JSON.
func ParseNote(data []byte) (Note, error) {
	var n Note
	if err := json.Unmarshal(data, &n); err != nil {
		if errors.Is(err, ErrNoteFormat) {
			return Note{}, err
		}
		return Note{}, errors.Wrap(ErrNoteFormat, err.Error())
	}
	return n, nil
}

// NoteDescription is the wallet's durable record of an owned note.
type NoteDescription struct {
	Note       Note        `json:"note"`
	Address    uint64      `json:"address"`
	Commitment common.Hash `json:"commitment"`
}

type noteDescriptionJSON struct {
	Note       Note   `json:"note"`
	Address    uint64 `json:"address"`
	Commitment string `json:"commitment"`
}

func (d NoteDescription) MarshalJSON() ([]byte, error) {
	return json.Marshal(noteDescriptionJSON{Note: d.Note, Address: d.Address, Commitment: DigestHex(d.Commitment)})
}

func (d *NoteDescription) UnmarshalJSON(data []byte) error {
	var raw noteDescriptionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(ErrNoteFormat, err.Error())
	}
	cm, err := ParseDigest(raw.Commitment)
	if err != nil {
		return err
	}
	*d = NoteDescription{Note: raw.Note, Address: raw.Address, Commitment: cm}
	return nil
}

// ShortCommitment is the user-facing identifier of a commitment.
func ShortCommitment(cm common.Hash) string {
	return hex.EncodeToString(cm[:ShortCommitmentLength])
}

// ShortCommitment of the described note.
func (d NoteDescription) ShortCommitment() string { return ShortCommitment(d.Commitment) }
