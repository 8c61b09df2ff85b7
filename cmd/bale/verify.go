package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/bale/internal/container"
	"github.com/bamsammich/bale/internal/engine"
	"github.com/bamsammich/bale/internal/envelope"
	"github.com/bamsammich/bale/internal/tmpfile"
)

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var (
		passwordFile string
		contents     bool
	)
	cmd := &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check an archive against its state record and sidecar",
		Long: `Recompute the digests of an archive and compare them with its state record
and its .sha256 sidecar. Envelope-encrypted archives need a password; without
one the checks are skipped. Exits 1 when any reference disagrees.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := args[0]

			var password string
			scheme, err := envelope.DetectFile(archive)
			if err != nil {
				return err
			}
			switch {
			case scheme != envelope.SchemeNone || passwordFile != "":
				password, err = newPasswordSource(passwordFile).read(false)
				// Without a password the digest checks report "encrypted".
				if err != nil && (passwordFile != "" || !errors.Is(err, errNoPassword)) {
					return err
				}
			default:
				// Zip entry encryption needs a password only to list contents.
				password = os.Getenv(passwordEnv)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := engine.Verify(ctx, engine.VerifyConfig{
				Archive:       archive,
				Password:      password,
				StatePath:     g.statePath,
				CheckContents: contents,
			})
			if errors.Is(err, envelope.ErrDecrypt) || errors.Is(err, container.ErrEntryAuth) {
				// A failed tag check is a verification failure, not an I/O error.
				fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED (%v)\n", archive, err)
				return &exitError{code: 1}
			}
			if err != nil {
				return err
			}

			printVerify(cmd.OutOrStdout(), res)
			if !res.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from FILE")
	cmd.Flags().BoolVar(&contents, "contents", false, "also list the archive and compare entries with the record")
	return cmd
}

func printVerify(w io.Writer, res engine.VerifyResult) {
	for _, c := range res.Checks {
		line := fmt.Sprintf("%-8s %-9s %s", c.Reference, c.Algorithm, c.Status)
		if c.Reason != "" {
			line += " (" + c.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %v\n", warn)
	}
	switch {
	case !res.OK():
		fmt.Fprintf(w, "%s: FAILED\n", res.Archive)
	case !res.Matched():
		fmt.Fprintf(w, "%s: nothing to compare against\n", res.Archive)
	default:
		fmt.Fprintf(w, "%s: OK\n", res.Archive)
	}
}

func newDecryptCmd(_ *globalFlags) *cobra.Command {
	var (
		passwordFile string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "decrypt <file>",
		Short: "Remove the encryption envelope from an archive",
		Long: `Decrypt an AEAD- or age-encrypted archive. By default the file is replaced
in place; with --output the plaintext is written there instead and the
encrypted file is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			scheme, err := envelope.DetectFile(path)
			if err != nil {
				return err
			}
			if scheme == envelope.SchemeNone {
				return fmt.Errorf("%s: %w", path, envelope.ErrNotEncrypted)
			}
			password, err := newPasswordSource(passwordFile).read(false)
			if err != nil {
				return err
			}

			out := path
			if output == "" {
				_, err = envelope.DecryptFile(path, password)
			} else {
				out = output
				err = decryptTo(path, output, password)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from FILE")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write plaintext to FILE instead of in place")
	return cmd
}

func decryptTo(src, dst, password string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s: %w", dst, os.ErrExist)
	}
	tmp, err := tmpfile.Create(dst, 0644)
	if err != nil {
		return err
	}
	defer tmp.Discard()
	if _, err := envelope.DecryptTo(tmp, src, password); err != nil {
		return err
	}
	return tmp.Commit()
}
