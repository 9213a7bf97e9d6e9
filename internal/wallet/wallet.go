// wallet.go - Notes owned by one zeth user and their reconciliation with
// mixer events.
//
// A wallet directory holds a note store per user (notes_<user>) and a state
// file (state_<user>.json). Only one process may use a wallet directory.
package wallet

import (
	"encoding/json"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"zethclient/internal/ledger"
	"zethclient/internal/metrics"
	"zethclient/internal/zeth"
)

// Identifiers up to this length are tree addresses.
const addressIDMaxLength = 4

var ErrInvalidUsername = errors.New("wallet: username must be non-empty and must not contain '_'")

type Wallet struct {
	user      string
	secret    zeth.SecretAddress
	statePath string
	state     State
	db        *leveldb.DB
	pending   *leveldb.Batch
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Wallet.
type Option func(*Wallet)

func WithLogger(l zerolog.Logger) Option {
	return func(w *Wallet) { w.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Wallet) { w.metrics = m }
}

// Open loads the wallet of username from dir, creating it if needed.
func Open(dir, username string, secret zeth.SecretAddress, opts ...Option) (*Wallet, error) {
	if username == "" || strings.Contains(username, "_") {
		return nil, errors.Wrapf(ErrInvalidUsername, "%q", username)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "create wallet directory")
	}

	statePath := filepath.Join(dir, "state_"+username+".json")
	state, err := loadState(statePath)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(filepath.Join(dir, "notes_"+username), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open note store")
	}

	w := &Wallet{
		user:      username,
		secret:    secret,
		statePath: statePath,
		state:     state,
		db:        db,
		pending:   new(leveldb.Batch),
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(w)
	}
	w.logger = w.logger.With().Str("user", username).Logger()
	return w, nil
}

func (w *Wallet) Close() error {
	return errors.Wrap(w.db.Close(), "close note store")
}

func (w *Wallet) Username() string { return w.user }

// NextBlock is the first block not yet reconciled.
func (w *Wallet) NextBlock() uint64 { return w.state.NextBlock }

// NumNotes counts every encrypted note seen, owned or not.
func (w *Wallet) NumNotes() uint64 { return w.state.NumNotes }

// State returns a snapshot of the in-memory state.
func (w *Wallet) State() State { return w.state.clone() }

// RestoreState resets the in-memory state to a snapshot, discarding
// changes not yet saved and notes not yet committed.
func (w *Wallet) RestoreState(s State) {
	w.state = s.clone()
	w.pending.Reset()
}

// ReceiveNotes decrypts and verifies the outputs of one mix and stages the
// notes addressed to this wallet until CommitNotes. Notes that fail to
// decrypt, parse or match their commitment are skipped. Storing is keyed by
// tree address, so receiving the same outputs again leaves the store
// unchanged.
func (w *Wallet) ReceiveNotes(notes []ledger.EncryptedNote, sender zeth.EncryptionPublicKey) ([]zeth.NoteDescription, error) {
	var accepted []zeth.NoteDescription
	for _, en := range notes {
		log := w.logger.With().Uint64("address", en.Address).Str("commitment", zeth.ShortCommitment(en.Commitment)).Logger()

		plaintext, err := zeth.Decrypt(en.Ciphertext, sender, w.secret.KSK)
		if err != nil {
			log.Debug().Msg("note not addressed to wallet")
			w.metrics.NoteMissed(metrics.MissDecryption)
			continue
		}
		note, err := zeth.ParseNote(plaintext)
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed note")
			w.metrics.NoteMissed(metrics.MissFormat)
			continue
		}
		if err := zeth.VerifyCommitment(note, en.Commitment); err != nil {
			log.Warn().Err(err).Msg("skipping note")
			w.metrics.NoteMissed(metrics.MissCommitment)
			continue
		}

		desc := zeth.NoteDescription{Note: note, Address: en.Address, Commitment: en.Commitment}
		data, err := json.Marshal(desc)
		if err != nil {
			return nil, errors.Wrap(err, "encode note")
		}
		key := keyFor(w.user, desc)
		w.pending.Put([]byte(key.String()), data)

		nf := zeth.ComputeNullifier(note, w.secret.ASK)
		w.state.NullifierMap[zeth.DigestHex(nf)] = desc.ShortCommitment()
		accepted = append(accepted, desc)
		log.Info().Str("value", key.Value.String()).Msg("received note")
	}

	w.state.NumNotes += uint64(len(notes))
	for range accepted {
		w.metrics.NoteAccepted()
	}
	return accepted, nil
}

// CommitNotes writes the staged notes in one synced batch.
func (w *Wallet) CommitNotes() error {
	if w.pending.Len() == 0 {
		return nil
	}
	if err := w.db.Write(w.pending, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(err, "store notes")
	}
	w.pending.Reset()
	return nil
}

// UpdateAndSaveState advances the checkpoint and writes the state file.
func (w *Wallet) UpdateAndSaveState(nextBlock uint64) error {
	next := w.state.clone()
	next.NextBlock = nextBlock
	if err := saveState(w.statePath, next); err != nil {
		return err
	}
	w.state = next
	w.metrics.SetNextBlock(nextBlock)
	return nil
}

// IsOwnNullifier reports whether nf spends a note of this wallet and
// returns the note's short commitment.
func (w *Wallet) IsOwnNullifier(nf common.Hash) (string, bool) {
	cm, ok := w.state.NullifierMap[zeth.DigestHex(nf)]
	return cm, ok
}

// NoteSummary is what the store key alone says about a note.
type NoteSummary struct {
	Address         uint64
	ShortCommitment string
	Value           zeth.EtherValue
}

// keys yields the raw and parsed store keys of this user's notes.
func (w *Wallet) keys() iter.Seq2[string, NoteKey] {
	return func(yield func(string, NoteKey) bool) {
		it := w.db.NewIterator(util.BytesPrefix([]byte(userPrefix(w.user))), nil)
		defer it.Release()
		for it.Next() {
			raw := string(it.Key())
			key, err := ParseNoteKey(raw)
			if err != nil || key.User != w.user {
				continue
			}
			if !yield(raw, key) {
				return
			}
		}
		if err := it.Error(); err != nil {
			w.logger.Warn().Err(err).Msg("note store iteration stopped")
		}
	}
}

// NoteSummaries lists stored notes in key order. Entries whose key does not
// parse are left out.
func (w *Wallet) NoteSummaries() iter.Seq[NoteSummary] {
	return func(yield func(NoteSummary) bool) {
		for _, key := range w.keys() {
			if !yield(NoteSummary{Address: key.Address, ShortCommitment: key.ShortCommitment, Value: key.Value}) {
				return
			}
		}
	}
}

// NoteDescriptions lists the full stored records in key order, leaving out
// those that do not decode.
func (w *Wallet) NoteDescriptions() iter.Seq[zeth.NoteDescription] {
	return func(yield func(zeth.NoteDescription) bool) {
		for raw := range w.keys() {
			desc, err := w.load(raw)
			if err != nil {
				w.logger.Warn().Err(err).Str("key", raw).Msg("skipping stored note")
				continue
			}
			if !yield(desc) {
				return
			}
		}
	}
}

func (w *Wallet) load(raw string) (zeth.NoteDescription, error) {
	data, err := w.db.Get([]byte(raw), nil)
	if err != nil {
		return zeth.NoteDescription{}, errors.Wrap(err, "read note")
	}
	var desc zeth.NoteDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return zeth.NoteDescription{}, err
	}
	return desc, nil
}

// Balance sums the values of stored notes.
func (w *Wallet) Balance() (zeth.EtherValue, error) {
	var total zeth.EtherValue
	for s := range w.NoteSummaries() {
		var err error
		if total, err = total.Add(s.Value); err != nil {
			return zeth.EtherValue{}, err
		}
	}
	return total, nil
}

type LookupStatus int

const (
	NotFound LookupStatus = iota
	Found
	Ambiguous
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not found"
	}
}

// NoteLookup is the outcome of FindNote. Note is set only when Status is
// Found.
type NoteLookup struct {
	Status  LookupStatus
	Note    zeth.NoteDescription
	Matches int
}

// FindNote resolves id to a single stored note. Identifiers of up to four
// characters are tree addresses; longer ones are short commitment
// prefixes.
func (w *Wallet) FindNote(id string) (NoteLookup, error) {
	var (
		match func(NoteKey) bool
		ok    bool
	)
	if len(id) <= addressIDMaxLength {
		match, ok = addressMatcher(id)
	} else {
		match, ok = commitmentMatcher(id)
	}
	if !ok {
		return NoteLookup{Status: NotFound}, nil
	}

	var found []string
	for raw, key := range w.keys() {
		if match(key) {
			found = append(found, raw)
		}
	}
	switch len(found) {
	case 0:
		return NoteLookup{Status: NotFound}, nil
	case 1:
		desc, err := w.load(found[0])
		if err != nil {
			return NoteLookup{}, errors.Wrapf(err, "note %s", found[0])
		}
		return NoteLookup{Status: Found, Note: desc, Matches: 1}, nil
	default:
		return NoteLookup{Status: Ambiguous, Matches: len(found)}, nil
	}
}

func addressMatcher(id string) (func(NoteKey) bool, bool) {
	addr, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, false
	}
	return func(k NoteKey) bool { return k.Address == addr }, true
}

func commitmentMatcher(id string) (func(NoteKey) bool, bool) {
	id = strings.ToLower(id)
	return func(k NoteKey) bool { return strings.HasPrefix(k.ShortCommitment, id) }, true
}
