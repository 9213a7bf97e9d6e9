// wallet_commands.go - Address, sync and note commands
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"zethclient/internal/ledger"
	"zethclient/internal/merkle"
	"zethclient/internal/metrics"
	"zethclient/internal/mixer"
	"zethclient/internal/prover"
	"zethclient/internal/syncer"
	"zethclient/internal/wallet"
	"zethclient/internal/zeth"
)

func (a *app) openWallet(opts ...wallet.Option) (*wallet.Wallet, zeth.SecretAddress, error) {
	secret, err := zeth.LoadSecretAddress(a.config.SecretAddressFile)
	if err != nil {
		return nil, zeth.SecretAddress{}, errors.Wrap(err, "run gen-address first")
	}
	w, err := wallet.Open(a.config.WalletDir, a.config.Username, secret, opts...)
	if err != nil {
		return nil, zeth.SecretAddress{}, err
	}
	return w, secret, nil
}

func (a *app) genAddressCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "gen-address",
		Short: "Generate a secret address and print its public address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.config.SecretAddressFile
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Errorf("%s already exists (use --force to replace it)", path)
			}
			secret, err := zeth.GenerateSecretAddress()
			if err != nil {
				return err
			}
			public, err := secret.PublicAddress()
			if err != nil {
				return err
			}
			if err := zeth.SaveSecretAddress(path, secret); err != nil {
				return err
			}
			a.logger.Warn().Str("path", path).Msg("secret address written")
			fmt.Fprintln(cmd.OutOrStdout(), public)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing secret address")
	return cmd
}

// syncStatus is the outcome of the latest sync cycle.
type syncStatus struct {
	mu  sync.Mutex
	err error
	at  time.Time
}

func (s *syncStatus) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err, s.at = err, time.Now()
}

func (s *syncStatus) check(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.at.IsZero() {
		return "no sync completed yet", nil
	}
	return "", s.err
}

func (a *app) syncCommand() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Process mixer events up to the latest block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runSync(ctx, cmd, watch, interval)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep syncing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "Delay between sync cycles with --watch")
	return cmd
}

func (a *app) runSync(ctx context.Context, cmd *cobra.Command, watch bool, interval time.Duration) error {
	cfg, log := a.config, a.logger

	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return errors.Wrapf(err, "dial %s", cfg.RPCEndpoint)
	}
	defer client.Close()
	backend := newLimitedBackend(client, cfg.RPCRateLimit, cfg.Timeout())

	source, err := ledger.NewSource(backend, cfg.mixer(),
		ledger.WithBatchSize(cfg.SyncBatchBlocks),
		ledger.WithLogger(log.Component("ledger")))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	w, _, err := a.openWallet(wallet.WithLogger(log.Component("wallet")), wallet.WithMetrics(m))
	if err != nil {
		return err
	}
	defer w.Close()

	tree, err := merkle.Open(cfg.MerkleTreePath, cfg.TreeDepth)
	if err != nil {
		return err
	}
	defer tree.Close()

	s := syncer.New(source, w, tree, syncer.WithLogger(log.Component("syncer")), syncer.WithMetrics(m))
	status := &syncStatus{}

	if cfg.MetricsAddr != "" {
		health := NewHealthChecker(Version)
		health.RegisterComponent("ledger", func(ctx context.Context) (string, error) {
			_, err := source.LatestBlock(ctx)
			return "", err
		})
		health.RegisterComponent("sync", status.check)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.Handle("/healthz", health)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
	}

	for {
		err := s.SyncToLatest(ctx)
		status.record(err)
		switch {
		case ctx.Err() != nil:
			log.Warn().Uint64("next_block", w.NextBlock()).Msg("sync interrupted")
			return nil
		case err != nil && (!watch || errors.Is(err, syncer.ErrRootMismatch)):
			return err
		case err != nil:
			log.Error().Err(err).Msg("sync cycle failed")
		default:
			log.Info().Uint64("next_block", w.NextBlock()).Uint64("num_notes", w.NumNotes()).Msg("wallet synced")
		}
		if !watch {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}

	balance, err := w.Balance()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "next block %d, balance %s ETH\n", w.NextBlock(), balance)
	return nil
}

func (a *app) lsNotesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls-notes",
		Short: "List the notes held by the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, _, err := a.openWallet(wallet.WithLogger(a.logger.Component("wallet")))
			if err != nil {
				return err
			}
			defer w.Close()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Address", "Commitment", "Value (ETH)")
			for n := range w.NoteSummaries() {
				if err := table.Append([]string{fmt.Sprint(n.Address), n.ShortCommitment, n.Value.String()}); err != nil {
					return err
				}
			}
			balance, err := w.Balance()
			if err != nil {
				return err
			}
			table.Footer("", "Total", balance.String())
			return table.Render()
		},
	}
}

func (a *app) lsCommitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls-commits",
		Short: "List the commitments in the local Merkle tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tree, err := merkle.Open(a.config.MerkleTreePath, a.config.TreeDepth)
			if err != nil {
				return err
			}
			defer tree.Close()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Index", "Commitment")
			for _, leaf := range tree.Leaves() {
				if err := table.Append([]string{fmt.Sprint(leaf.Index), zeth.DigestHex(leaf.Value)}); err != nil {
					return err
				}
			}
			table.Footer("Root", zeth.DigestHex(tree.Root()))
			return table.Render()
		},
	}
}

// lookupNote resolves id or fails with a message naming the outcome.
func lookupNote(w *wallet.Wallet, id string) (zeth.NoteDescription, error) {
	lookup, err := w.FindNote(id)
	if err != nil {
		return zeth.NoteDescription{}, err
	}
	switch lookup.Status {
	case wallet.Found:
		return lookup.Note, nil
	case wallet.Ambiguous:
		return zeth.NoteDescription{}, errors.Errorf("note id %q is ambiguous (%d matches)", id, lookup.Matches)
	default:
		return zeth.NoteDescription{}, errors.Errorf("no note matches %q", id)
	}
}

func (a *app) findNoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "find-note <id>",
		Short: "Print a note by tree address or commitment prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := a.openWallet(wallet.WithLogger(a.logger.Component("wallet")))
			if err != nil {
				return err
			}
			defer w.Close()

			desc, err := lookupNote(w, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(desc, "", "  ")
			if err != nil {
				return errors.Wrap(err, "encode note")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

type spendOutput struct {
	Nullifier       string `json:"nullifier"`
	Root            string `json:"root"`
	SigTag          string `json:"sig_tag"`
	Proof           string `json:"proof"`
	PublicInputs    string `json:"public_inputs"`
	VerificationKey string `json:"verification_key"`
	Signature       string `json:"signature"`
}

func (a *app) spendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "spend <id>",
		Short: "Prove ownership of a note against the local tree and sign the proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, secret, err := a.openWallet(wallet.WithLogger(a.logger.Component("wallet")))
			if err != nil {
				return err
			}
			defer w.Close()
			desc, err := lookupNote(w, args[0])
			if err != nil {
				return err
			}

			tree, err := merkle.Open(a.config.MerkleTreePath, a.config.TreeDepth)
			if err != nil {
				return err
			}
			defer tree.Close()

			g, err := prover.Setup(a.config.TreeDepth, a.config.KeyDir, prover.WithLogger(a.logger.Component("prover")))
			if err != nil {
				return err
			}
			spend, err := mixer.BuildSpend(g, desc, secret.ASK, tree)
			if err != nil {
				return err
			}
			if err := mixer.VerifySpend(g, spend); err != nil {
				return err
			}
			a.logger.Info().
				Uint64("address", desc.Address).
				Str("nullifier", zeth.DigestHex(spend.Nullifier)).
				Msg("spend built")

			out, err := json.MarshalIndent(spendOutput{
				Nullifier:       zeth.DigestHex(spend.Nullifier),
				Root:            zeth.DigestHex(spend.Root),
				SigTag:          zeth.DigestHex(spend.SigTag),
				Proof:           hexutil.Encode(spend.Proof.Proof),
				PublicInputs:    hexutil.Encode(spend.Proof.PublicInputs),
				VerificationKey: hexutil.Encode(spend.VerificationKey.Bytes()),
				Signature:       spend.Signature.String(),
			}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "encode spend")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
