// source.go - Batched retrieval of mixer events from a ledger node.

package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of blocks covered by one log query.
const DefaultBatchSize = 5000

// Backend is the part of a ledger client the source needs.
// *ethclient.Client satisfies it.
type Backend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// BlockRange is an inclusive range of block numbers.
type BlockRange struct {
	From uint64
	To   uint64
}

// Source reads mix results of one mixer contract.
type Source struct {
	backend   Backend
	contract  common.Address
	batchSize uint64
	decoder   *Decoder
	logger    zerolog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithBatchSize sets how many blocks one query covers.
func WithBatchSize(n uint64) Option {
	return func(s *Source) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// NewSource returns a source reading the logs of contract through backend.
func NewSource(backend Backend, contract common.Address, opts ...Option) (*Source, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	s := &Source{
		backend:   backend,
		contract:  contract,
		batchSize: DefaultBatchSize,
		decoder:   decoder,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Batches splits [from, to] into ranges of at most the batch size.
func (s *Source) Batches(from, to uint64) []BlockRange {
	var out []BlockRange
	for start := from; start <= to; {
		end := start + s.batchSize - 1
		if end > to || end < start {
			end = to
		}
		out = append(out, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return out
}

// LatestBlock returns the current chain head.
func (s *Source) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := s.backend.BlockNumber(ctx)
	return n, errors.Wrap(err, "query block number")
}

// MixResults fetches and groups the mixer events of one block range.
func (s *Source) MixResults(ctx context.Context, r BlockRange) ([]MixResult, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{s.decoder.Topics()},
	}
	logs, err := s.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "filter logs %d-%d", r.From, r.To)
	}
	ev, err := s.decoder.DecodeLogs(logs)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Uint64("from", r.From).Uint64("to", r.To).
		Int("roots", len(ev.Roots)).Int("commitments", len(ev.Commitments)).Int("ciphertexts", len(ev.Ciphertexts)).
		Msg("fetched mixer events")

	results, err := ParseMixResults(ev.Roots, ev.Commitments, ev.Ciphertexts)
	if err != nil {
		s.logger.Error().Err(err).Uint64("from", r.From).Uint64("to", r.To).Msg("mixer events violate pairing")
		return nil, err
	}
	return results, nil
}
