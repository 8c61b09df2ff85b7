package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/bale/internal/digest"
	"github.com/bamsammich/bale/internal/envelope"
	"github.com/bamsammich/bale/internal/state"
	"github.com/bamsammich/bale/internal/ui"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded archives, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := state.Load(g.statePath)
			if err != nil {
				return err
			}
			records := store.List()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no archives recorded in %s\n", store.Path())
				return nil
			}
			return writeTable(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func writeTable(w io.Writer, records []state.Metadata) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCREATED\tKIND\tSIZE\tFILES\tENCRYPTION\tSHA-256")
	for _, m := range records {
		enc := "-"
		if m.Encrypted {
			enc = m.Encryption
			if enc == "" {
				enc = "yes"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Name,
			m.CreatedAt.Local().Format(time.DateTime),
			m.Kind,
			ui.FormatBytes(m.SizeBytes),
			ui.FormatCount(int64(m.FileCount)),
			enc,
			shortSum(m.Checksum()),
		)
	}
	return tw.Flush()
}

func shortSum(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newShowCmd(g *globalFlags) *cobra.Command {
	var (
		check  string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one recorded archive",
		Long: `Show the state record for an archive by file name. With --check, hash
the given file and compare it against every digest in the record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := state.Load(g.statePath)
			if err != nil {
				return err
			}
			m, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("no archive named %q in %s", args[0], store.Path())
			}

			w := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(w, m); err != nil {
					return err
				}
			} else {
				printRecord(w, m, limit)
			}

			if check == "" {
				return nil
			}
			ok, err = checkRecord(w, m, check)
			if err != nil {
				return err
			}
			if !ok {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&check, "check", "", "compare ARCHIVE's digests with the record")
	cmd.Flags().IntVar(&limit, "limit", 20, "contents entries to print (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}

func printRecord(w io.Writer, m state.Metadata, limit int) {
	fmt.Fprintf(w, "name:       %s\n", m.Name)
	fmt.Fprintf(w, "created:    %s\n", m.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "kind:       %s\n", m.Kind)
	fmt.Fprintf(w, "size:       %s (%d bytes)\n", ui.FormatBytes(m.SizeBytes), m.SizeBytes)
	fmt.Fprintf(w, "files:      %s\n", ui.FormatCount(int64(m.FileCount)))
	if m.Encrypted {
		fmt.Fprintf(w, "encryption: %s\n", m.Encryption)
	}
	for _, alg := range digest.Algorithms() {
		if sum, ok := m.Digests.Get(alg); ok {
			fmt.Fprintf(w, "%-11s %s\n", alg.String()+":", sum)
		}
	}

	fmt.Fprintln(w, "contents:")
	shown := m.Contents
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, name := range shown {
		fmt.Fprintf(w, "  %s\n", name)
	}
	if rest := len(m.Contents) - len(shown); rest > 0 {
		fmt.Fprintf(w, "  ... and %s more\n", ui.FormatCount(int64(rest)))
	}
}

// checkRecord hashes path with every algorithm in the record and prints one
// line per digest.
func checkRecord(w io.Writer, m state.Metadata, path string) (bool, error) {
	scheme, err := envelope.DetectFile(path)
	if err != nil {
		return false, err
	}
	if scheme != envelope.SchemeNone {
		return false, fmt.Errorf("%s is %s-encrypted; use bale verify with a password", path, scheme)
	}

	var algs []digest.Algorithm
	for _, alg := range digest.Algorithms() {
		if _, ok := m.Digests.Get(alg); ok {
			algs = append(algs, alg)
		}
	}
	if len(algs) == 0 {
		return false, errors.New("record has no digests")
	}
	got, err := digest.File(path, algs...)
	if err != nil {
		return false, err
	}

	ok := true
	for _, alg := range algs {
		want, _ := m.Digests.Get(alg)
		have, _ := got.Get(alg)
		status := digest.StatusMatch
		if want != have {
			status = digest.StatusMismatch
			ok = false
		}
		fmt.Fprintf(w, "check %-9s %s\n", alg, status)
	}
	return ok, nil
}
