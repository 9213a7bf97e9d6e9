// state.go - Persisted synchronisation state of a wallet.
package wallet

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var ErrStateFormat = errors.New("wallet: malformed state file")

// State is the sync checkpoint of a wallet. NullifierMap maps the hex
// nullifier of each owned note to its short commitment.
type State struct {
	NextBlock    uint64            `json:"next_block"`
	NumNotes     uint64            `json:"num_notes"`
	NullifierMap map[string]string `json:"nullifier_map"`
}

func defaultState() State {
	return State{NextBlock: 1, NullifierMap: map[string]string{}}
}

func (s State) clone() State {
	c := s
	c.NullifierMap = maps.Clone(s.NullifierMap)
	if c.NullifierMap == nil {
		c.NullifierMap = map[string]string{}
	}
	return c
}

func loadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultState(), nil
	}
	if err != nil {
		return State{}, errors.Wrap(err, "read wallet state")
	}
	var raw struct {
		NextBlock    *uint64           `json:"next_block"`
		NumNotes     *uint64           `json:"num_notes"`
		NullifierMap map[string]string `json:"nullifier_map"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, errors.Wrapf(ErrStateFormat, "%s: %v", path, err)
	}
	if raw.NextBlock == nil || raw.NumNotes == nil || raw.NullifierMap == nil {
		return State{}, errors.Wrapf(ErrStateFormat, "%s: missing field", path)
	}
	return State{NextBlock: *raw.NextBlock, NumNotes: *raw.NumNotes, NullifierMap: raw.NullifierMap}, nil
}

// saveState replaces path atomically.
func saveState(path string, s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode wallet state")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "create state file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close state file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replace state file")
}
