// main.go - Command line client for a zeth mixer.
//
// The client keeps a local wallet of received notes in sync with the mixer
// contract, mirrors the commitment Merkle tree, builds spends of owned notes
// and signs MPC ceremony contributions.
//
// Usage:
//
//	zeth gen-address
//	zeth sync [--watch]
//	zeth ls-notes | ls-commits | find-note <id> | spend <id>
//	zeth ceremony keygen | digest | sign | verify
package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var Version = "dev"

type app struct {
	configPath string
	logLevel   string

	config *Config
	logger *Logger
}

func main() {
	a := &app{}
	if err := a.rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "zeth",
		Short:             "Client for a zeth shielded pool",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.setup(true) },
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logger == nil {
				return nil
			}
			return a.logger.Close()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&a.configPath, "config", "zeth.json", "Path of the JSON configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level (debug|info|warn|error|fatal)")

	root.AddCommand(
		a.genAddressCommand(),
		a.syncCommand(),
		a.lsNotesCommand(),
		a.lsCommitsCommand(),
		a.findNoteCommand(),
		a.spendCommand(),
		a.ceremonyCommand(),
	)
	return root
}

// setup builds the logger, from the configuration file when withConfig is
// set and from flags alone otherwise.
func (a *app) setup(withConfig bool) error {
	config := DefaultConfig()
	if withConfig {
		var err error
		if config, err = LoadConfig(a.configPath); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		config.LogLevel = a.logLevel
	}
	if err := config.Validate(); err != nil {
		return errors.Wrapf(err, "invalid configuration %s", a.configPath)
	}

	auditPath := ""
	if config.EnableAudit {
		auditPath = config.AuditLogPath
	}
	logger, err := NewLogger(config.LogLevel, config.LogFile, auditPath)
	if err != nil {
		return err
	}
	a.config = config
	a.logger = logger
	return nil
}
