// syncer.go - Drives a wallet and the local Merkle tree through the mixer
// events of a block range, one batch at a time.
//
// A batch is reconciled completely before the wallet checkpoint moves past
// it. A batch that fails or is cancelled leaves the checkpoint where it was
// and is processed again by the next run.
package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"zethclient/internal/ledger"
	"zethclient/internal/metrics"
	"zethclient/internal/wallet"
	"zethclient/internal/zeth"
)

var ErrRootMismatch = errors.New("syncer: local merkle root differs from mixer root")

// Phase is the position of a syncer in its cycle.
type Phase int32

const (
	Idle Phase = iota
	Fetching
	Decrypting
	Verifying
	Persisting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Decrypting:
		return "decrypting"
	case Verifying:
		return "verifying"
	case Persisting:
		return "persisting"
	}
	return "unknown"
}

// EventSource yields mixer results. *ledger.Source satisfies it.
type EventSource interface {
	Batches(from, to uint64) []ledger.BlockRange
	LatestBlock(ctx context.Context) (uint64, error)
	MixResults(ctx context.Context, r ledger.BlockRange) ([]ledger.MixResult, error)
}

// Wallet is the reconciliation side of *wallet.Wallet.
type Wallet interface {
	NextBlock() uint64
	State() wallet.State
	RestoreState(wallet.State)
	ReceiveNotes(notes []ledger.EncryptedNote, sender zeth.EncryptionPublicKey) ([]zeth.NoteDescription, error)
	CommitNotes() error
	UpdateAndSaveState(nextBlock uint64) error
}

// Tree is the local copy of the mixer tree. *merkle.PersistentTree
// satisfies it.
type Tree interface {
	SetEntry(index uint64, data []byte) error
	Root() common.Hash
	NumEntries() uint64
	Save() error
}

type Syncer struct {
	source  EventSource
	wallet  Wallet
	tree    Tree
	logger  zerolog.Logger
	metrics *metrics.Metrics
	phase   atomic.Int32
}

type Option func(*Syncer)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

func New(source EventSource, w Wallet, tree Tree, opts ...Option) *Syncer {
	s := &Syncer{source: source, wallet: w, tree: tree, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Phase reports the current phase. It may be read from another goroutine.
func (s *Syncer) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Syncer) enter(p Phase) {
	s.phase.Store(int32(p))
	s.logger.Trace().Stringer("phase", p).Msg("sync phase")
}

// SyncToLatest runs up to the current chain head.
func (s *Syncer) SyncToLatest(ctx context.Context) error {
	head, err := s.source.LatestBlock(ctx)
	if err != nil {
		return err
	}
	return s.Run(ctx, head)
}

// Run reconciles blocks from the wallet checkpoint up to toBlock inclusive.
func (s *Syncer) Run(ctx context.Context, toBlock uint64) error {
	from := s.wallet.NextBlock()
	if from > toBlock {
		s.logger.Debug().Uint64("next_block", from).Uint64("to", toBlock).Msg("wallet up to date")
		return nil
	}
	for _, r := range s.source.Batches(from, toBlock) {
		if err := s.runBatch(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) runBatch(ctx context.Context, r ledger.BlockRange) (err error) {
	start := time.Now()
	snapshot := s.wallet.State()
	log := s.logger.With().Uint64("from", r.From).Uint64("to", r.To).Logger()

	defer func() {
		s.enter(Idle)
		s.metrics.ObserveBatch(start, err)
		if err != nil {
			s.wallet.RestoreState(snapshot)
			log.Error().Err(err).Msg("batch abandoned")
		}
	}()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "sync cancelled")
	}

	s.enter(Fetching)
	results, err := s.source.MixResults(ctx, r)
	if err != nil {
		return err
	}

	received := 0
	for _, mix := range results {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "sync cancelled")
		}
		n, err := s.reconcile(mix)
		if err != nil {
			return err
		}
		received += n
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "sync cancelled")
	}
	s.enter(Persisting)
	if err := s.tree.Save(); err != nil {
		return err
	}
	if err := s.wallet.CommitNotes(); err != nil {
		return err
	}
	if err := s.wallet.UpdateAndSaveState(r.To + 1); err != nil {
		return err
	}
	s.metrics.SetTreeLeaves(s.tree.NumEntries())

	log.Info().Int("mixes", len(results)).Int("received", received).Msg("batch synchronised")
	return nil
}

// reconcile applies one mix to the wallet and the tree and returns the
// number of notes received.
func (s *Syncer) reconcile(mix ledger.MixResult) (int, error) {
	s.enter(Decrypting)
	notes, err := s.wallet.ReceiveNotes(mix.EncryptedNotes, mix.SenderPK)
	if err != nil {
		return 0, errors.Wrapf(err, "receive notes of tx %s", mix.TxHash.Hex())
	}

	s.enter(Verifying)
	for _, en := range mix.EncryptedNotes {
		if err := s.tree.SetEntry(en.Address, en.Commitment[:]); err != nil {
			return 0, errors.Wrapf(err, "commitment %d of tx %s", en.Address, mix.TxHash.Hex())
		}
	}
	if root := s.tree.Root(); root != mix.NewMerkleRoot {
		return 0, errors.Wrapf(ErrRootMismatch, "tx %s: local %s, mixer %s",
			mix.TxHash.Hex(), zeth.DigestHex(root), zeth.DigestHex(mix.NewMerkleRoot))
	}
	s.metrics.MixProcessed(len(mix.EncryptedNotes))
	return len(notes), nil
}
