// events.go - Mixer events and their grouping into per-transaction results.
//
// A mix transaction emits one LogMerkleRoot followed, for every output note,
// by a LogCommitment and a LogSecretCiphers. Commitments and ciphertexts of
// the same transaction arrive paired and in the same order.

package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"zethclient/internal/zeth"
)

var (
	ErrEventCountMismatch = errors.New("ledger: commitment and ciphertext counts differ")
	ErrProtocolViolation  = errors.New("ledger: mixer events out of order")
)

// MerkleRootEvent is a LogMerkleRoot entry.
type MerkleRootEvent struct {
	TxHash      common.Hash
	BlockNumber uint64
	Root        common.Hash
}

// CommitmentEvent is a LogCommitment entry.
type CommitmentEvent struct {
	TxHash      common.Hash
	BlockNumber uint64
	Address     uint64
	Commitment  common.Hash
}

// CiphertextEvent is a LogSecretCiphers entry.
type CiphertextEvent struct {
	TxHash      common.Hash
	BlockNumber uint64
	SenderPK    zeth.EncryptionPublicKey
	Ciphertext  []byte
}

// EncryptedNote is one output of a mix: its tree address, commitment and
// the ciphertext carrying the note to its receiver.
type EncryptedNote struct {
	Address    uint64
	Commitment common.Hash
	Ciphertext []byte
}

// MixResult gathers the events of one mix transaction.
type MixResult struct {
	TxHash         common.Hash
	BlockNumber    uint64
	NewMerkleRoot  common.Hash
	SenderPK       zeth.EncryptionPublicKey
	EncryptedNotes []EncryptedNote
}

type pairState int

const (
	pairAvailable pairState = iota
	pairsExhausted
)

type eventPair struct {
	commitment CommitmentEvent
	ciphertext CiphertextEvent
}

// pairedEvents zips commitments with ciphertexts.
type pairedEvents struct {
	commits []CommitmentEvent
	ciphers []CiphertextEvent
	next    int
}

func zipEvents(commits []CommitmentEvent, ciphers []CiphertextEvent) (*pairedEvents, error) {
	if len(commits) != len(ciphers) {
		return nil, errors.Wrapf(ErrEventCountMismatch, "%d commitments, %d ciphertexts", len(commits), len(ciphers))
	}
	return &pairedEvents{commits: commits, ciphers: ciphers}, nil
}

func (p *pairedEvents) peek() (eventPair, pairState) {
	if p.next >= len(p.commits) {
		return eventPair{}, pairsExhausted
	}
	return eventPair{commitment: p.commits[p.next], ciphertext: p.ciphers[p.next]}, pairAvailable
}

func (p *pairedEvents) advance() { p.next++ }

// ParseMixResults groups decoded events by transaction. Every root must be
// followed by at least one pair and every pair must belong to a root.
func ParseMixResults(roots []MerkleRootEvent, commits []CommitmentEvent, ciphers []CiphertextEvent) ([]MixResult, error) {
	pairs, err := zipEvents(commits, ciphers)
	if err != nil {
		return nil, err
	}

	var results []MixResult
	for _, root := range roots {
		pair, state := pairs.peek()
		if state == pairsExhausted {
			return nil, errors.Wrapf(ErrProtocolViolation, "root in tx %s has no commitments", root.TxHash.Hex())
		}
		result := MixResult{TxHash: root.TxHash, BlockNumber: root.BlockNumber, NewMerkleRoot: root.Root}
		for state == pairAvailable && pair.commitment.TxHash == root.TxHash {
			if pair.ciphertext.TxHash != pair.commitment.TxHash {
				return nil, errors.Wrapf(ErrProtocolViolation, "commitment in tx %s paired with ciphertext in tx %s",
					pair.commitment.TxHash.Hex(), pair.ciphertext.TxHash.Hex())
			}
			if len(result.EncryptedNotes) == 0 {
				result.SenderPK = pair.ciphertext.SenderPK
			} else if result.SenderPK != pair.ciphertext.SenderPK {
				return nil, errors.Wrapf(ErrProtocolViolation, "tx %s has several senders", root.TxHash.Hex())
			}
			result.EncryptedNotes = append(result.EncryptedNotes, EncryptedNote{
				Address:    pair.commitment.Address,
				Commitment: pair.commitment.Commitment,
				Ciphertext: pair.ciphertext.Ciphertext,
			})
			pairs.advance()
			pair, state = pairs.peek()
		}
		if len(result.EncryptedNotes) > 0 {
			results = append(results, result)
		}
	}
	if pair, state := pairs.peek(); state == pairAvailable {
		return nil, errors.Wrapf(ErrProtocolViolation, "commitment in tx %s has no root", pair.commitment.TxHash.Hex())
	}
	return results, nil
}
