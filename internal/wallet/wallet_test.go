package wallet

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zethclient/internal/ledger"
	"zethclient/internal/zeth"
)

type fixture struct {
	dir      string
	secret   zeth.SecretAddress
	public   zeth.PublicAddress
	senderSK zeth.EncryptionSecretKey
	senderPK zeth.EncryptionPublicKey
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	secret, err := zeth.GenerateSecretAddress()
	require.NoError(t, err)
	public, err := secret.PublicAddress()
	require.NoError(t, err)
	senderSK, err := zeth.GenerateEncryptionSecretKey()
	require.NoError(t, err)
	senderPK, err := senderSK.PublicKey()
	require.NoError(t, err)
	return fixture{dir: t.TempDir(), secret: secret, public: public, senderSK: senderSK, senderPK: senderPK}
}

func (f fixture) open(t *testing.T) *Wallet {
	t.Helper()
	w, err := Open(f.dir, "alice", f.secret)
	require.NoError(t, err)
	return w
}

// output encrypts a note of value units for receiver at address.
func (f fixture) output(t *testing.T, receiver zeth.PublicAddress, address, units uint64) (ledger.EncryptedNote, zeth.Note) {
	t.Helper()
	note, err := zeth.NewNote(receiver.APK, units)
	require.NoError(t, err)
	ct, err := zeth.EncryptNote(note, receiver.KPK, f.senderSK)
	require.NoError(t, err)
	return ledger.EncryptedNote{Address: address, Commitment: zeth.ComputeCommitment(note), Ciphertext: ct}, note
}

func (f fixture) mix(t *testing.T) []ledger.EncryptedNote {
	t.Helper()
	other, err := zeth.GenerateSecretAddress()
	require.NoError(t, err)
	otherPub, err := other.PublicAddress()
	require.NoError(t, err)

	mine3, _ := f.output(t, f.public, 3, 500_000)
	mine1, _ := f.output(t, f.public, 1, 1_000_000)
	foreign, _ := f.output(t, otherPub, 2, 7)
	garbled, _ := f.output(t, f.public, 4, 9)
	garbled.Commitment[0] ^= 0xff
	junk, err := zeth.Encrypt([]byte("not a note"), f.public.KPK, f.senderSK)
	require.NoError(t, err)

	return []ledger.EncryptedNote{mine3, foreign, mine1, garbled, {Address: 5, Ciphertext: junk}}
}

// receive stores the notes of one mix as a completed sync would.
func receive(t *testing.T, w *Wallet, notes []ledger.EncryptedNote, sender zeth.EncryptionPublicKey) []zeth.NoteDescription {
	t.Helper()
	accepted, err := w.ReceiveNotes(notes, sender)
	require.NoError(t, err)
	require.NoError(t, w.CommitNotes())
	return accepted
}

func summaries(w *Wallet) []NoteSummary {
	return slices.Collect(w.NoteSummaries())
}

func TestOpenDefaults(t *testing.T) {
	f := newFixture(t)
	w := f.open(t)
	defer w.Close()

	assert.EqualValues(t, 1, w.NextBlock())
	assert.EqualValues(t, 0, w.NumNotes())
	assert.Empty(t, w.State().NullifierMap)
	assert.Empty(t, summaries(w))

	for _, name := range []string{"", "a_b"} {
		_, err := Open(f.dir, name, f.secret)
		assert.ErrorIs(t, err, ErrInvalidUsername, name)
	}
}

func TestReceiveNotes(t *testing.T) {
	f := newFixture(t)
	w := f.open(t)
	defer w.Close()

	notes := f.mix(t)
	accepted, err := w.ReceiveNotes(notes, f.senderPK)
	require.NoError(t, err)
	require.Len(t, accepted, 2)
	assert.EqualValues(t, 3, accepted[0].Address)
	assert.EqualValues(t, 1, accepted[1].Address)
	assert.EqualValues(t, len(notes), w.NumNotes())
	assert.Empty(t, summaries(w), "notes are staged until committed")

	require.NoError(t, w.CommitNotes())
	got := summaries(w)
	require.Len(t, got, 2)
	assert.EqualValues(t, 1, got[0].Address, "summaries follow key order")
	assert.Equal(t, "1", got[0].Value.String())
	assert.Equal(t, "0.5", got[1].Value.String())
	assert.Equal(t, zeth.ShortCommitment(notes[2].Commitment), got[0].ShortCommitment)

	balance, err := w.Balance()
	require.NoError(t, err)
	assert.Equal(t, "1.5", balance.String())

	descs := slices.Collect(w.NoteDescriptions())
	require.Len(t, descs, 2)
	assert.Equal(t, notes[2].Commitment, descs[0].Commitment)

	nf := zeth.ComputeNullifier(accepted[0].Note, f.secret.ASK)
	cm, ok := w.IsOwnNullifier(nf)
	assert.True(t, ok)
	assert.Equal(t, accepted[0].ShortCommitment(), cm)
	_, ok = w.IsOwnNullifier(common.Hash{1})
	assert.False(t, ok)
}

func TestReceiveNotesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	w := f.open(t)
	defer w.Close()

	notes := f.mix(t)
	receive(t, w, notes, f.senderPK)
	before := summaries(w)
	nullifiers := w.State().NullifierMap

	receive(t, w, notes, f.senderPK)
	assert.Equal(t, before, summaries(w))
	assert.Equal(t, nullifiers, w.State().NullifierMap)
}

func TestStatePersistence(t *testing.T) {
	f := newFixture(t)
	w := f.open(t)

	receive(t, w, f.mix(t), f.senderPK)
	require.NoError(t, w.UpdateAndSaveState(42))
	saved := w.State()
	require.NoError(t, w.Close())

	w = f.open(t)
	defer w.Close()
	assert.Equal(t, saved, w.State())
	assert.EqualValues(t, 42, w.NextBlock())
	assert.Len(t, summaries(w), 2)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no temporary state file left behind")
	}
}

func TestRestoreState(t *testing.T) {
	f := newFixture(t)
	w := f.open(t)
	defer w.Close()

	snapshot := w.State()
	_, err := w.ReceiveNotes(f.mix(t), f.senderPK)
	require.NoError(t, err)
	assert.NotEqual(t, snapshot, w.State())

	w.RestoreState(snapshot)
	assert.Equal(t, snapshot, w.State())
	assert.EqualValues(t, 0, w.NumNotes())

	require.NoError(t, w.CommitNotes())
	assert.Empty(t, summaries(w), "staged notes are dropped with the state")
}

func TestMalformedState(t *testing.T) {
	for name, content := range map[string]string{
		"not json":      "{",
		"missing field": `{"next_block": 3, "num_notes": 0}`,
		"wrong type":    `{"next_block": "x", "num_notes": 0, "nullifier_map": {}}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, os.WriteFile(filepath.Join(f.dir, "state_alice.json"), []byte(content), 0600))
			_, err := Open(f.dir, "alice", f.secret)
			assert.ErrorIs(t, err, ErrStateFormat)
		})
	}
}

func TestSummariesSkipForeignEntries(t *testing.T) {
	f := newFixture(t)
	w := f.open(t)
	defer w.Close()

	receive(t, w, f.mix(t), f.senderPK)
	for _, k := range []string{
		"note_alice_garbage",
		"note_alice_12_abcdef01_1",
		"note_bob_0000000000_abcdef01_1",
		"state",
	} {
		require.NoError(t, w.db.Put([]byte(k), []byte("{}"), nil))
	}
	assert.Len(t, summaries(w), 2)

	var first []NoteSummary
	for s := range w.NoteSummaries() {
		first = append(first, s)
		break
	}
	assert.Len(t, first, 1)
	assert.Len(t, summaries(w), 2, "sequence restarts")
}

func TestFindNote(t *testing.T) {
	f := newFixture(t)
	w := f.open(t)
	defer w.Close()

	notes := f.mix(t)
	receive(t, w, notes, f.senderPK)

	res, err := w.FindNote("3")
	require.NoError(t, err)
	require.Equal(t, Found, res.Status)
	assert.Equal(t, notes[0].Commitment, res.Note.Commitment)

	short := zeth.ShortCommitment(notes[2].Commitment)
	res, err = w.FindNote(short[:6])
	require.NoError(t, err)
	require.Equal(t, Found, res.Status)
	assert.EqualValues(t, 1, res.Note.Address)

	for _, id := range []string{"2", "abc", "", "zzzzzz"} {
		res, err = w.FindNote(id)
		require.NoError(t, err)
		assert.Equal(t, NotFound, res.Status, id)
	}

	dup := NoteKey{User: "alice", Address: 3, ShortCommitment: "00000000", Value: zeth.FromZethUnits(1)}
	require.NoError(t, w.db.Put([]byte(dup.String()), []byte("{}"), nil))
	res, err = w.FindNote("3")
	require.NoError(t, err)
	assert.Equal(t, Ambiguous, res.Status)
	assert.Equal(t, 2, res.Matches)
}

func TestNoteKey(t *testing.T) {
	value, err := zeth.ParseEther("0.25")
	require.NoError(t, err)
	key := NoteKey{User: "alice", Address: 17, ShortCommitment: "0a1b2c3d", Value: value}
	assert.Equal(t, "note_alice_0000000017_0a1b2c3d_0.25", key.String())

	parsed, err := ParseNoteKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{
		"",
		"alice_0000000017_0a1b2c3d_0.25",
		"note__0000000017_0a1b2c3d_0.25",
		"note_alice_17_0a1b2c3d_0.25",
		"note_alice_000000001x_0a1b2c3d_0.25",
		"note_alice_0000000017_0A1B2C3D_0.25",
		"note_alice_0000000017_0a1b_0.25",
		"note_alice_0000000017_0a1b2c3d_lots",
		"note_alice_0000000017_0a1b2c3d_0.25_extra",
	} {
		_, err := ParseNoteKey(bad)
		assert.ErrorIs(t, err, ErrNoteKeyFormat, bad)
	}
}
