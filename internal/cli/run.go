// Package cli implements the truth command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/truth/internal/config"
	"github.com/calvinalkan/truth/internal/fs"
	"github.com/calvinalkan/truth/internal/policy"
	"github.com/calvinalkan/truth/internal/truth"
)

// Run is the main entry point. Returns exit code.
//
// The first signal on sigCh cancels the command's context; a running
// transaction then fails at its next step and rolls back.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("truth", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	cwd := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	backupDir := globals.String("backup-dir", "", "Write backup archives to `dir`")
	verbose := globals.BoolP("verbose", "v", false, "Log pipeline steps to stderr")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globals, nil)

		return exitFailure
	}

	if globals.Changed("backup-dir") && *backupDir == "" {
		fprintln(errOut, "error: --backup-dir cannot be empty")
		fprintln(errOut)
		printUsage(errOut, globals, nil)

		return exitFailure
	}

	cfg, err := config.Load(config.Input{
		WorkDirOverride:   *cwd,
		ConfigPath:        *configPath,
		BackupDirOverride: *backupDir,
		Verbose:           *verbose,
		Env:               env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return exitFailure
	}

	a := &app{
		cfg: cfg,
		fs:  fs.NewReal(),
		in:  in,
		log: slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.Level()})),
	}

	commands := a.commands()
	rest := globals.Args()

	if *help || len(rest) == 0 {
		printUsage(out, globals, commands)

		return exitOK
	}

	var cmd *Command

	for _, c := range commands {
		if c.Name() == rest[0] {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", rest[0])
		fprintln(errOut)
		printUsage(errOut, globals, commands)

		return exitFailure
	}

	if cmd.Mutates {
		cmd.Exec = a.locked(cmd.Exec)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				fprintln(errOut, "interrupted; stopping at the next step")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
}

// app carries what every command needs.
type app struct {
	cfg config.Config
	fs  fs.FS
	in  io.Reader
	log *slog.Logger

	pol *policy.Policy
	m   *truth.Manager
}

func (a *app) commands() []*Command {
	return []*Command{
		StatusCmd(a),
		MintDraftCmd(a),
		SetTypeCmd(a),
		ConfirmDraftCmd(a),
		DiscardDraftCmd(a),
		MintCmd(a),
		ReseedCmd(a),
		RepairCmd(a),
		VerifyCmd(a),
		IndexCmd(a),
		BackupCmd(a),
		ValidateBackupCmd(a),
		PrintConfigCmd(a),
	}
}

// policy loads the repository policy once.
func (a *app) policy() (*policy.Policy, error) {
	if a.pol != nil {
		return a.pol, nil
	}

	pol, err := policy.Load(a.fs, a.cfg.Root)
	if err != nil {
		return nil, err
	}

	a.pol = pol

	return pol, nil
}

// manager builds the ledger manager for the repository once.
func (a *app) manager() (*truth.Manager, error) {
	if a.m != nil {
		return a.m, nil
	}

	pol, err := a.policy()
	if err != nil {
		return nil, err
	}

	m, err := truth.New(truth.Config{
		FS:        a.fs,
		Root:      a.cfg.Root,
		Policy:    pol,
		Logger:    a.log,
		BackupDir: a.cfg.BackupDirAbs,
	})
	if err != nil {
		return nil, err
	}

	a.m = m

	return m, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, `truth - append-only truth ledger with transactional releases

Usage: truth [global flags] <command> [args]`)
	fprintln(w)
	fprintln(w, "Global flags:")

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	_, _ = io.WriteString(w, buf.String())

	if len(commands) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}

	fprintln(w)
	fprintln(w, "Run 'truth <command> --help' for command flags.")
}

var errArgsNotAllowed = errors.New("unexpected arguments")

func noArgs(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s", errArgsNotAllowed, strings.Join(args, " "))
	}

	return nil
}
