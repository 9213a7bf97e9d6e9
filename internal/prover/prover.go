// prover.go - Groth16 proofs of note membership over BN254.
//
// Proofs leave this package as opaque bytes: the serialized Groth16 proof
// and the serialized public witness it was made for.
package prover

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"zethclient/internal/merkle"
	"zethclient/internal/zeth"
)

const curve = ecc.BN254

var (
	ErrPathLength   = errors.New("prover: merkle path does not match circuit depth")
	ErrInvalidProof = errors.New("prover: proof rejected")
)

// PublicInputs are the values a verifier sees.
type PublicInputs struct {
	Root      common.Hash
	Nullifier common.Hash
	HSig      common.Hash
	SigTag    common.Hash
}

func (p PublicInputs) assign(c *MembershipCircuit) {
	c.Root = p.Root.Big()
	c.Nullifier = p.Nullifier.Big()
	c.HSig = p.HSig.Big()
	c.SigTag = p.SigTag.Big()
}

// Encode serializes the public witness.
func (p PublicInputs) Encode() ([]byte, error) {
	var c MembershipCircuit
	p.assign(&c)
	w, err := frontend.NewWitness(&c, curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, errors.Wrap(err, "public witness")
	}
	data, err := w.MarshalBinary()
	return data, errors.Wrap(err, "encode public witness")
}

// Witness is everything the prover needs for one spend.
type Witness struct {
	PublicInputs
	ASK  zeth.FieldElement
	Note zeth.Note
	Path merkle.Path
}

func (w Witness) assignment(depth int) (*MembershipCircuit, error) {
	if len(w.Path.Siblings) != depth || len(w.Path.Bits) != depth {
		return nil, errors.Wrapf(ErrPathLength, "path length %d, depth %d", len(w.Path.Siblings), depth)
	}
	c := NewMembershipCircuit(depth)
	w.PublicInputs.assign(c)
	c.ASK = fieldBig(w.ASK)
	c.Rho = fieldBig(w.Note.Rho)
	c.TrapR = fieldBig(w.Note.TrapR)
	c.Value = new(big.Int).SetUint64(w.Note.Value)
	for k := range w.Path.Siblings {
		c.Path[k] = w.Path.Siblings[k].Big()
		if w.Path.Bits[k] {
			c.Bits[k] = 1
		} else {
			c.Bits[k] = 0
		}
	}
	return c, nil
}

func fieldBig(f zeth.FieldElement) *big.Int { return new(big.Int).SetBytes(f[:]) }

// Proof is an opaque proof and the public inputs it commits to.
type Proof struct {
	Proof        []byte
	PublicInputs []byte
}

// Groth16 proves and verifies membership for one tree depth.
type Groth16 struct {
	depth  int
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	vk     groth16.VerifyingKey
	logger zerolog.Logger
}

type Option func(*Groth16)

func WithLogger(l zerolog.Logger) Option {
	return func(g *Groth16) { g.logger = l }
}

// Setup compiles the circuit for depth and loads its keys from keyDir,
// generating and saving them when absent. An empty keyDir keeps fresh keys
// in memory only.
func Setup(depth int, keyDir string, opts ...Option) (*Groth16, error) {
	if depth < 1 || depth > merkle.MaxDepth {
		return nil, errors.Wrapf(merkle.ErrInvalidDepth, "depth %d", depth)
	}
	g := &Groth16{depth: depth, logger: zerolog.Nop()}
	for _, o := range opts {
		o(g)
	}

	ccs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, NewMembershipCircuit(depth))
	if err != nil {
		return nil, errors.Wrap(err, "compile membership circuit")
	}
	g.ccs = ccs
	g.logger.Debug().Int("depth", depth).Int("constraints", ccs.GetNbConstraints()).Msg("circuit compiled")

	if keyDir == "" {
		if g.pk, g.vk, err = groth16.Setup(ccs); err != nil {
			return nil, errors.Wrap(err, "groth16 setup")
		}
		return g, nil
	}
	pkPath := filepath.Join(keyDir, fmt.Sprintf("membership_d%d_pk.bin", depth))
	vkPath := filepath.Join(keyDir, fmt.Sprintf("membership_d%d_vk.bin", depth))
	if g.pk, g.vk, err = setupOrLoadKeys(ccs, pkPath, vkPath, g.logger); err != nil {
		return nil, err
	}
	return g, nil
}

func setupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string, log zerolog.Logger) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk := groth16.NewProvingKey(curve)
	vk := groth16.NewVerifyingKey(curve)
	pkErr := readKey(pkPath, pk)
	vkErr := readKey(vkPath, vk)
	if pkErr == nil && vkErr == nil {
		log.Debug().Str("proving_key", pkPath).Msg("loaded groth16 keys")
		return pk, vk, nil
	}

	log.Info().Str("proving_key", pkPath).Msg("generating groth16 keys")
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "groth16 setup")
	}
	if err := os.MkdirAll(filepath.Dir(pkPath), 0700); err != nil {
		return nil, nil, errors.Wrap(err, "create key directory")
	}
	if err := writeKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := writeKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

type keyReader interface {
	ReadFrom(r io.Reader) (int64, error)
}

type keyWriter interface {
	WriteTo(w io.Writer) (int64, error)
}

func readKey(path string, k keyReader) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = k.ReadFrom(f)
	return errors.Wrapf(err, "read %s", path)
}

func writeKey(path string, k keyWriter) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create key file")
	}
	if _, err := k.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

func (g *Groth16) Depth() int { return g.depth }

// Prove produces a proof for w.
func (g *Groth16) Prove(w Witness) (Proof, error) {
	assignment, err := w.assignment(g.depth)
	if err != nil {
		return Proof{}, err
	}
	full, err := frontend.NewWitness(assignment, curve.ScalarField())
	if err != nil {
		return Proof{}, errors.Wrap(err, "witness creation")
	}
	proof, err := groth16.Prove(g.ccs, g.pk, full)
	if err != nil {
		return Proof{}, errors.Wrap(err, "proof generation")
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return Proof{}, errors.Wrap(err, "encode proof")
	}
	public, err := w.PublicInputs.Encode()
	if err != nil {
		return Proof{}, err
	}
	return Proof{Proof: buf.Bytes(), PublicInputs: public}, nil
}

// Verify checks p against its own public inputs.
func (g *Groth16) Verify(p Proof) error {
	proof := groth16.NewProof(curve)
	if _, err := proof.ReadFrom(bytes.NewReader(p.Proof)); err != nil {
		return errors.Wrapf(ErrInvalidProof, "decode proof: %v", err)
	}
	public, err := witness.New(curve.ScalarField())
	if err != nil {
		return errors.Wrap(err, "public witness")
	}
	if err := public.UnmarshalBinary(p.PublicInputs); err != nil {
		return errors.Wrapf(ErrInvalidProof, "decode public inputs: %v", err)
	}
	if err := groth16.Verify(proof, g.vk, public); err != nil {
		return errors.Wrap(ErrInvalidProof, err.Error())
	}
	return nil
}

// VerifyingKeyBytes serializes the verifying key.
func (g *Groth16) VerifyingKeyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := g.vk.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "encode verifying key")
	}
	return buf.Bytes(), nil
}
