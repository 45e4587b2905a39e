package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"invoicing-backend/internal/vault"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Manage credential envelopes for tenant identities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("key", "", "base64 encryption key (defaults to $CREDENTIAL_KEY)")

	root.AddCommand(keygenCmd())
	root.AddCommand(sealCmd())
	root.AddCommand(openCmd())
	return root
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new random 256-bit key for CREDENTIAL_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func sealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal [plaintext]",
		Short: "Seal a secret into an envelope; reads stdin when no argument is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vaultFromFlags(cmd)
			if err != nil {
				return err
			}
			plaintext, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			if plaintext == "" {
				return fmt.Errorf("nothing to seal")
			}
			envelope, err := v.Seal([]byte(plaintext))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), envelope)
			return nil
		},
	}
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open [envelope]",
		Short: "Open an envelope and print the secret; reads stdin when no argument is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vaultFromFlags(cmd)
			if err != nil {
				return err
			}
			envelope, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			plaintext, err := v.Open(envelope)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(plaintext))
			return nil
		},
	}
}

func vaultFromFlags(cmd *cobra.Command) (*vault.Vault, error) {
	key, _ := cmd.Flags().GetString("key")
	if strings.TrimSpace(key) == "" {
		key = os.Getenv("CREDENTIAL_KEY")
	}
	v, err := vault.NewFromEncoded(key)
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}
	return v, nil
}

func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
