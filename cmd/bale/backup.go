package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/bale/internal/config"
	"github.com/bamsammich/bale/internal/container"
	"github.com/bamsammich/bale/internal/engine"
	"github.com/bamsammich/bale/internal/envelope"
	"github.com/bamsammich/bale/internal/event"
	"github.com/bamsammich/bale/internal/filter"
	"github.com/bamsammich/bale/internal/stats"
	"github.com/bamsammich/bale/internal/ui"
)

type backupOpts struct {
	name          string
	dateFormat    string
	kind          string
	level         int
	extreme       bool
	threads       int
	hashes        []string
	encrypt       bool
	cipher        string
	envelope      string
	passwordFile  string
	noSort        bool
	bwLimit       string
	keepBackup    bool
	ageWorkFactor int
	filters       *filter.Chain
	filterFile    string
	minSize       string
	maxSize       string
}

// filterFlag is a pflag.Value that appends --exclude and --include rules
// to one shared chain so their command-line order is preserved.
type filterFlag struct {
	chain   *filter.Chain
	include bool
}

var _ pflag.Value = (*filterFlag)(nil)

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.chain.AddInclude(val)
	}
	return f.chain.AddExclude(val)
}

func newBackupCmd(g *globalFlags) *cobra.Command {
	o := &backupOpts{filters: filter.NewChain()}
	cmd := &cobra.Command{
		Use:   "backup <source> [destination]",
		Short: "Archive a directory",
		Long: `Archive every regular file under <source> into a single container in
[destination], write a SHA-256 sidecar next to it, and record it in the
state file. Destination may be omitted when set in the config file.

Zip archives are encrypted per entry (AES-256); tar archives are wrapped in
an AEAD or age envelope after the checksum is taken.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyConfigDefaults(cmd, g.cfg.Defaults, o)
			return runBackup(cmd, g, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.name, "name", "", "archive base name (default: date template)")
	f.StringVar(&o.dateFormat, "date-format", engine.DefaultNameFormat, "strftime template for the default name")
	f.StringVarP(&o.kind, "kind", "k", engine.DefaultKind.String(), "container kind: tar.gz, tar.zst, zip, tar.lz4")
	f.IntVarP(&o.level, "level", "l", 0, "compression level (default: per kind)")
	f.BoolVar(&o.extreme, "extreme", false, "allow zstd levels 20-22 (compress like 19: the encoder's best setting)")
	f.IntVarP(&o.threads, "threads", "t", 0, "directory scan workers (default: NumCPU)")
	f.StringSliceVar(&o.hashes, "hash", nil, "extra digests: sha3-256, blake3, xxh64 (SHA-256 is always computed)")
	f.BoolVarP(&o.encrypt, "encrypt", "e", false, "encrypt the archive")
	f.StringVar(&o.cipher, "cipher", "aes-256-gcm", "AEAD envelope cipher: aes-256-gcm, chacha20-poly1305")
	f.StringVar(&o.envelope, "envelope", "aead", "tar encryption envelope: aead, age")
	f.StringVar(&o.passwordFile, "password-file", "", "read the password from FILE (implies --encrypt)")
	f.BoolVar(&o.noSort, "no-sort", false, "archive in path order instead of largest first")
	f.StringVar(&o.bwLimit, "bwlimit", "", "archive write limit per second (e.g. 50M)")
	f.BoolVar(&o.keepBackup, "keep-backup", false, "keep the plaintext archive as <archive>.bak after encrypting")
	f.IntVar(&o.ageWorkFactor, "age-work-factor", 0, "age scrypt work factor (default: age's)")
	f.Var(&filterFlag{chain: o.filters}, "exclude", "skip paths matching PATTERN (repeatable)")
	f.Var(&filterFlag{chain: o.filters, include: true}, "include", "keep paths matching PATTERN (repeatable)")
	f.StringVar(&o.filterFile, "filter", "", "read include/exclude rules from FILE")
	f.StringVar(&o.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	f.StringVar(&o.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
	return cmd
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, d config.DefaultsConfig, o *backupOpts) {
	changed := cmd.Flags().Changed
	if !changed("kind") && d.Kind != nil {
		o.kind = *d.Kind
	}
	if !changed("level") && d.Level != nil {
		o.level = *d.Level
	}
	if !changed("threads") && d.Threads != nil {
		o.threads = *d.Threads
	}
	if !changed("cipher") && d.Cipher != nil {
		o.cipher = *d.Cipher
	}
	if !changed("hash") && len(d.Hashes) > 0 {
		o.hashes = d.Hashes
	}
	if !changed("envelope") && d.Envelope != nil {
		o.envelope = *d.Envelope
	}
	if !changed("date-format") && d.DateFormat != nil {
		o.dateFormat = *d.DateFormat
	}
	if !changed("encrypt") && d.Encrypt != nil {
		o.encrypt = *d.Encrypt
	}
	if !changed("no-sort") && d.SortBySize != nil {
		o.noSort = !*d.SortBySize
	}
	if !changed("bwlimit") && d.BWLimit != nil {
		o.bwLimit = *d.BWLimit
	}
	if !changed("age-work-factor") && d.AgeWorkFactor != nil {
		o.ageWorkFactor = *d.AgeWorkFactor
	}
	if !changed("filter") && d.FilterFile != nil {
		o.filterFile = *d.FilterFile
	}
}

// levelSet reports whether a level came from the CLI or the config file.
func levelSet(cmd *cobra.Command, d config.DefaultsConfig) bool {
	return cmd.Flags().Changed("level") || d.Level != nil
}

// buildJob turns parsed options into an engine job.
func buildJob(cmd *cobra.Command, g *globalFlags, o *backupOpts, args []string) (engine.Job, error) {
	job := engine.Job{
		Source:        args[0],
		Name:          o.name,
		Level:         o.level,
		LevelSet:      levelSet(cmd, g.cfg.Defaults),
		AllowExtreme:  o.extreme,
		Threads:       o.threads,
		SortBySize:    !o.noSort,
		Digests:       o.hashes,
		KeepBackup:    o.keepBackup,
		AgeWorkFactor: o.ageWorkFactor,
		StatePath:     g.statePath,
	}

	switch {
	case len(args) == 2:
		job.Destination = args[1]
	case g.cfg.Defaults.Destination != nil:
		job.Destination = expandHome(*g.cfg.Defaults.Destination)
	default:
		return job, errors.New("no destination: pass one or set defaults.destination in " + config.Path())
	}

	kind, err := container.ParseKind(o.kind)
	if err != nil {
		return job, err
	}
	job.Kind = kind

	if job.Name == "" {
		job.Name = engine.NameFromTemplate(o.dateFormat, time.Now())
	}

	if o.bwLimit != "" {
		if job.BWLimit, err = config.ParseSize(o.bwLimit); err != nil {
			return job, fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	if job.Filter, err = buildFilter(g.cfg.Defaults, o); err != nil {
		return job, err
	}

	if o.encrypt || o.passwordFile != "" {
		if job.Envelope, err = envelope.ParseScheme(o.envelope); err != nil {
			return job, err
		}
		if job.Cipher, err = envelope.ParseCipher(o.cipher); err != nil {
			return job, err
		}
		if job.Password, err = newPasswordSource(o.passwordFile).read(true); err != nil {
			return job, err
		}
	}
	return job, nil
}

// buildFilter appends config excludes and the rules file after the
// command-line rules, so flags take precedence.
func buildFilter(d config.DefaultsConfig, o *backupOpts) (*filter.Chain, error) {
	chain := o.filters
	if chain == nil {
		chain = filter.NewChain()
	}
	for _, pat := range d.Exclude {
		if err := chain.AddExclude(pat); err != nil {
			return nil, fmt.Errorf("config exclude: %w", err)
		}
	}
	if o.filterFile != "" {
		if err := chain.LoadFile(expandHome(o.filterFile)); err != nil {
			return nil, fmt.Errorf("load filter file: %w", err)
		}
	}
	if o.minSize != "" {
		n, err := config.ParseSize(o.minSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --min-size: %w", err)
		}
		chain.SetMinSize(n)
	}
	if o.maxSize != "" {
		n, err := config.ParseSize(o.maxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size: %w", err)
		}
		chain.SetMaxSize(n)
	}
	if chain.Empty() {
		return nil, nil
	}
	for _, r := range chain.Rules() {
		slog.Debug("filter rule", "rule", r.String(), "origin", r.Origin)
	}
	return chain, nil
}

// expandHome resolves a leading "~/" in paths read from the config file.
func expandHome(path string) string {
	var rest string
	switch {
	case path == "~":
	case strings.HasPrefix(path, "~/"):
		rest = path[2:]
	default:
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

func runBackup(cmd *cobra.Command, g *globalFlags, o *backupOpts, args []string) error {
	job, err := buildJob(cmd, g, o, args)
	if err != nil {
		return err
	}

	// Set up context with signal handling.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	job.Events = events
	job.Stats = collector

	// When --log is set, tee events through the structured log before the
	// presenter sees them.
	presenterEvents := (<-chan event.Event)(events)
	if g.logFile != "" {
		teed := make(chan event.Event, 256)
		go logEvents(events, teed)
		presenterEvents = teed
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:     cmd.OutOrStdout(),
		ErrWriter:  os.Stderr,
		Stats:      collector,
		DstRoot:    job.Destination,
		IsTTY:      ui.IsTTY(os.Stderr.Fd()),
		Width:      ui.TermWidth(os.Stderr.Fd()),
		Quiet:      g.quiet,
		Verbose:    g.verbose,
		NoProgress: g.noProgress,
	})

	slog.Debug("starting backup",
		"source", job.Source,
		"destination", job.Destination,
		"kind", job.Kind,
		"encrypt", job.Password != "",
		"state", job.StatePath,
	)

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	res, runErr := engine.Run(ctx, job)
	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}

	if runErr != nil {
		slog.Error("backup failed", "error", runErr)
		return &exitError{code: 2}
	}

	if !g.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.ArchivePath)
	return nil
}
