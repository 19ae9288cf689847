package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/storage"
	"github.com/fjmerc/velvetrope/internal/utils"
)

// Version information
const (
	ToolVersion = "1.0.0"
	ToolName    = "velvetrope admin tool"
)

// env is the process environment a command runs against. Tests replace it.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	clock  clockwork.Clock
	open   func(ctx context.Context) (*repository.Repositories, *config.Config, error)
}

func defaultEnv() *env {
	return &env{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		clock:  clockwork.NewRealClock(),
		open: func(ctx context.Context) (*repository.Repositories, *config.Config, error) {
			if err := config.LoadDotEnv(".env"); err != nil {
				return nil, nil, err
			}
			cfg, err := config.Load()
			if err != nil {
				return nil, nil, err
			}
			repos, err := storage.Open(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return repos, cfg, nil
		},
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	// Handle top-level flags
	switch os.Args[1] {
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		os.Exit(0)
	case "-v", "--version", "version":
		fmt.Printf("%s v%s\n", ToolName, ToolVersion)
		os.Exit(0)
	}

	if err := dispatch(context.Background(), defaultEnv(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUnknownCommand = errors.New("unknown command")

func dispatch(ctx context.Context, e *env, cmd string, args []string) error {
	switch cmd {
	case "hash-password":
		return e.runHashPassword(args)
	case "block":
		return e.runBlock(ctx, args)
	case "unblock":
		return e.runUnblock(ctx, args)
	case "list":
		return e.runList(ctx, args)
	case "purge":
		return e.runPurge(ctx, args)
	case "prune":
		return e.runPrune(ctx, args)
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s v%s

Administers the velvetrope block registry and rate limit store. Connects to
the same storage as the server (DB_TYPE, DB_PATH, POSTGRES_*, ADMISSION_STORE,
REDIS_*), reading .env if present.

USAGE:
    velvetrope-admin <command> [options]

COMMANDS:
    hash-password   Hash a secret read from stdin
    block           Block an IP address or account
    unblock         Deactivate a block
    list            List active blocks
    purge           Delete a block record entirely
    prune           Delete expired rate limit windows now

FLAGS:
    -h, --help      Show this help message
    -v, --version   Show version information

EXAMPLES:
    # Block an abusive address for a day
    velvetrope-admin block --ns ip --identity 203.0.113.9 --reason scraping --duration 24h

    # Block an account indefinitely
    velvetrope-admin block --ns account --identity mallory@example.com --reason fraud

    # List account blocks as JSON
    velvetrope-admin list --ns account --json

For more information on a command, run:
    velvetrope-admin <command> --help
`, ToolName, ToolVersion)
}

// runHashPassword handles the "hash-password" subcommand
func (e *env) runHashPassword(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	member := fs.Bool("member", false, "Produce a member record instead of an administrator record")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := bufio.NewReader(e.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	secret = strings.TrimRight(secret, "\r\n")
	if secret == "" {
		return errors.New("secret is empty")
	}

	var encoded string
	if *member {
		encoded, err = utils.HashPassword(secret)
	} else {
		encoded, err = utils.HashAdminPassword(secret)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, encoded)
	return nil
}

// targetFlags registers --ns and --identity on fs.
func targetFlags(fs *flag.FlagSet) (*string, *string) {
	ns := fs.String("ns", "ip", "Namespace: ip or account")
	identity := fs.String("identity", "", "IP address or account email (required)")
	return ns, identity
}

// resolveTarget validates and normalizes a namespace/identity pair the way the
// server does.
func resolveTarget(nsFlag, identityFlag string) (repository.Namespace, string, error) {
	ns := repository.Namespace(nsFlag)
	if err := ns.Validate(); err != nil {
		return "", "", err
	}
	if identityFlag == "" {
		return "", "", errors.New("--identity is required")
	}
	if ns == repository.NamespaceIP {
		ip := utils.NormalizeIP(identityFlag)
		if ip == utils.UnknownIdentity && identityFlag != utils.UnknownIdentity {
			return "", "", fmt.Errorf("%q is not an IP address", identityFlag)
		}
		return ns, ip, nil
	}
	return ns, admission.NormalizeAccount(identityFlag), nil
}

// runBlock handles the "block" subcommand
func (e *env) runBlock(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("block", flag.ContinueOnError)
	nsFlag, identityFlag := targetFlags(fs)
	reason := fs.String("reason", "", "Reason recorded with the block")
	duration := fs.Duration("duration", 0, "Block duration, e.g. 24h (0 = indefinite)")
	by := fs.String("by", "cli", "Recorded as blocked_by")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ns, identity, err := resolveTarget(*nsFlag, *identityFlag)
	if err != nil {
		return err
	}
	if *duration < 0 {
		return errors.New("--duration cannot be negative")
	}

	repos, _, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer repos.Close()

	now := e.clock.Now()
	var expiresAt *time.Time
	if *duration > 0 {
		t := now.Add(*duration)
		expiresAt = &t
	}

	err = repos.Blocks.Block(ctx, repository.BlockRequest{
		Namespace: ns,
		Identity:  identity,
		Reason:    *reason,
		BlockedBy: *by,
		ExpiresAt: expiresAt,
		Now:       now,
	})
	if err != nil {
		return fmt.Errorf("failed to block %s: %w", identity, err)
	}

	if expiresAt != nil {
		fmt.Fprintf(e.stdout, "Blocked %s %s until %s\n", ns, identity, expiresAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintf(e.stdout, "Blocked %s %s indefinitely\n", ns, identity)
	}
	return nil
}

// runUnblock handles the "unblock" subcommand
func (e *env) runUnblock(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unblock", flag.ContinueOnError)
	nsFlag, identityFlag := targetFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ns, identity, err := resolveTarget(*nsFlag, *identityFlag)
	if err != nil {
		return err
	}

	repos, _, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer repos.Close()

	if err := repos.Blocks.Unblock(ctx, ns, identity); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no active block for %s %s", ns, identity)
		}
		return err
	}
	fmt.Fprintf(e.stdout, "Unblocked %s %s\n", ns, identity)
	return nil
}

// runPurge handles the "purge" subcommand
func (e *env) runPurge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	nsFlag, identityFlag := targetFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ns, identity, err := resolveTarget(*nsFlag, *identityFlag)
	if err != nil {
		return err
	}

	repos, _, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer repos.Close()

	if err := repos.Blocks.Purge(ctx, ns, identity); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("no block record for %s %s", ns, identity)
		}
		return err
	}
	fmt.Fprintf(e.stdout, "Purged %s %s\n", ns, identity)
	return nil
}

// runList handles the "list" subcommand
func (e *env) runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	nsFlag := fs.String("ns", "ip", "Namespace: ip or account")
	jsonOutput := fs.Bool("json", false, "JSON output format")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ns := repository.Namespace(*nsFlag)
	if err := ns.Validate(); err != nil {
		return err
	}

	repos, _, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer repos.Close()

	blocks, err := repos.Blocks.List(ctx, ns, e.clock.Now())
	if err != nil {
		return err
	}

	if *jsonOutput {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(blocks)
	}

	if len(blocks) == 0 {
		fmt.Fprintf(e.stdout, "No active %s blocks\n", ns)
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tBLOCKED AT\tEXPIRES\tBY\tREASON")
	for _, b := range blocks {
		expires := "never"
		if b.ExpiresAt != nil {
			expires = b.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			b.Identity, b.BlockedAt.UTC().Format(time.RFC3339), expires, b.BlockedBy, b.Reason)
	}
	return tw.Flush()
}

// runPrune handles the "prune" subcommand
func (e *env) runPrune(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	retention := fs.Duration("retention", 0, "Delete windows that started longer ago than this (default RATE_LIMIT_RETENTION_HOURS)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repos, cfg, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer repos.Close()

	keep := *retention
	if keep == 0 {
		keep = cfg.RateLimitRetention()
	}
	if w := cfg.Policies.MaxWindow(); keep < w {
		return fmt.Errorf("retention %s is shorter than the longest policy window %s", keep, w)
	}

	pruner, err := admission.NewPruner(repos.RateLimits, keep, cfg.PruneInterval(), admission.WithClock(e.clock))
	if err != nil {
		return err
	}
	n, err := pruner.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Pruned %d rate limit windows\n", n)
	return nil
}
