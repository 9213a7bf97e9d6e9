// ceremony_commands.go - Contributor side of an MPC ceremony
package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"zethclient/internal/ceremony"
)

func (a *app) ceremonyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ceremony",
		Short: "Sign and check MPC contribution digests",
		// Ceremony tools run without a client configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.setup(false) },
	}
	cmd.AddCommand(
		a.ceremonyKeygenCommand(),
		a.ceremonyDigestCommand(),
		a.ceremonySignCommand(),
		a.ceremonyVerifyCommand(),
	)
	return cmd
}

func (a *app) ceremonyKeygenCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a contributor key and print its verification key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sk, err := ceremony.GenerateSigningKey()
			if err != nil {
				return err
			}
			if err := ceremony.SaveSigningKey(out, sk); err != nil {
				return err
			}
			vk, err := ceremony.ExportVerificationKey(&sk.PublicKey)
			if err != nil {
				return err
			}
			a.logger.Warn().Str("path", out).Msg("contributor signing key written")
			fmt.Fprintln(cmd.OutOrStdout(), vk)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "contributor.key", "Where to write the DER signing key")
	return cmd
}

func (a *app) ceremonyDigestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "digest <file>",
		Short: "Print the SHA-512 digest of a contribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ceremony.ComputeFileDigest(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
}

// digestArg hashes the file when one is given and parses digestHex
// otherwise.
func digestArg(args []string, digestHex string) (ceremony.Digest, error) {
	switch {
	case len(args) == 1 && digestHex == "":
		return ceremony.ComputeFileDigest(args[0])
	case len(args) == 0 && digestHex != "":
		return ceremony.ImportDigest(digestHex)
	default:
		return ceremony.Digest{}, errors.New("pass either a contribution file or --digest")
	}
}

func (a *app) ceremonySignCommand() *cobra.Command {
	var keyPath, digestHex string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Sign the digest of a contribution",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := digestArg(args, digestHex)
			if err != nil {
				return err
			}
			sk, err := ceremony.LoadSigningKey(keyPath)
			if err != nil {
				return err
			}
			sig, err := ceremony.Sign(sk, d)
			if err != nil {
				return err
			}
			a.logger.Info().Str("digest", d.String()).Msg("contribution signed")
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "contributor.key", "DER signing key")
	cmd.Flags().StringVar(&digestHex, "digest", "", "Hex digest to sign instead of a file")
	return cmd
}

func (a *app) ceremonyVerifyCommand() *cobra.Command {
	var vkHex, sigHex, digestHex string
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check a contribution signature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := digestArg(args, digestHex)
			if err != nil {
				return err
			}
			vk, err := ceremony.ImportVerificationKey(vkHex)
			if err != nil {
				return err
			}
			sig, err := ceremony.ImportSignature(sigHex)
			if err != nil {
				return err
			}
			if !ceremony.Verify(vk, d, sig) {
				a.logger.Warn().Str("digest", d.String()).Msg("contribution signature rejected")
				return errors.New("signature does not match digest and key")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&vkHex, "vk", "", "Hex verification key")
	cmd.Flags().StringVar(&sigHex, "signature", "", "Hex signature")
	cmd.Flags().StringVar(&digestHex, "digest", "", "Hex digest to check instead of a file")
	cmd.MarkFlagRequired("vk")
	cmd.MarkFlagRequired("signature")
	return cmd
}
