// abi.go - Decoding of mixer contract logs.

package ledger

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"zethclient/internal/zeth"
)

const mixerEventsABI = `[
  {"anonymous":false,"type":"event","name":"LogMerkleRoot","inputs":[
    {"indexed":false,"name":"root","type":"bytes32"}]},
  {"anonymous":false,"type":"event","name":"LogCommitment","inputs":[
    {"indexed":false,"name":"commAddr","type":"uint256"},
    {"indexed":false,"name":"commit","type":"bytes32"}]},
  {"anonymous":false,"type":"event","name":"LogSecretCiphers","inputs":[
    {"indexed":false,"name":"pk_sender","type":"bytes32"},
    {"indexed":false,"name":"ciphertext","type":"bytes"}]}
]`

const (
	EventMerkleRoot    = "LogMerkleRoot"
	EventCommitment    = "LogCommitment"
	EventSecretCiphers = "LogSecretCiphers"
)

var ErrMalformedLog = errors.New("ledger: malformed mixer log")

// Decoder turns raw logs into typed mixer events.
type Decoder struct {
	abi abi.ABI
}

// NewDecoder parses the mixer event ABI.
func NewDecoder() (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(mixerEventsABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse mixer abi")
	}
	return &Decoder{abi: parsed}, nil
}

// Topics returns the event signatures of the three mixer events.
func (d *Decoder) Topics() []common.Hash {
	return []common.Hash{
		d.abi.Events[EventMerkleRoot].ID,
		d.abi.Events[EventCommitment].ID,
		d.abi.Events[EventSecretCiphers].ID,
	}
}

// Events holds decoded logs, each slice in log order.
type Events struct {
	Roots       []MerkleRootEvent
	Commitments []CommitmentEvent
	Ciphertexts []CiphertextEvent
}

// DecodeLogs sorts logs into the three event kinds. Removed logs and logs
// of other events are skipped.
func (d *Decoder) DecodeLogs(logs []types.Log) (Events, error) {
	var ev Events
	for i := range logs {
		lg := &logs[i]
		if lg.Removed || len(lg.Topics) == 0 {
			continue
		}
		switch lg.Topics[0] {
		case d.abi.Events[EventMerkleRoot].ID:
			vals, err := d.unpack(EventMerkleRoot, lg, 1)
			if err != nil {
				return Events{}, err
			}
			root, ok := vals[0].([32]byte)
			if !ok {
				return Events{}, malformed(lg, "root")
			}
			ev.Roots = append(ev.Roots, MerkleRootEvent{TxHash: lg.TxHash, BlockNumber: lg.BlockNumber, Root: root})

		case d.abi.Events[EventCommitment].ID:
			vals, err := d.unpack(EventCommitment, lg, 2)
			if err != nil {
				return Events{}, err
			}
			addr, ok := vals[0].(*big.Int)
			if !ok || !addr.IsUint64() {
				return Events{}, malformed(lg, "commitment address")
			}
			cm, ok := vals[1].([32]byte)
			if !ok {
				return Events{}, malformed(lg, "commitment")
			}
			ev.Commitments = append(ev.Commitments, CommitmentEvent{
				TxHash: lg.TxHash, BlockNumber: lg.BlockNumber, Address: addr.Uint64(), Commitment: cm,
			})

		case d.abi.Events[EventSecretCiphers].ID:
			vals, err := d.unpack(EventSecretCiphers, lg, 2)
			if err != nil {
				return Events{}, err
			}
			pk, ok := vals[0].([32]byte)
			if !ok {
				return Events{}, malformed(lg, "sender key")
			}
			ct, ok := vals[1].([]byte)
			if !ok {
				return Events{}, malformed(lg, "ciphertext")
			}
			ev.Ciphertexts = append(ev.Ciphertexts, CiphertextEvent{
				TxHash: lg.TxHash, BlockNumber: lg.BlockNumber, SenderPK: zeth.EncryptionPublicKey(pk), Ciphertext: ct,
			})
		}
	}
	return ev, nil
}

func (d *Decoder) unpack(event string, lg *types.Log, n int) ([]interface{}, error) {
	vals, err := d.abi.Unpack(event, lg.Data)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedLog, "%s in tx %s: %v", event, lg.TxHash.Hex(), err)
	}
	if len(vals) != n {
		return nil, malformed(lg, event)
	}
	return vals, nil
}

func malformed(lg *types.Log, field string) error {
	return errors.Wrapf(ErrMalformedLog, "%s in tx %s", field, lg.TxHash.Hex())
}
