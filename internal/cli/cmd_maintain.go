package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/truth/internal/truth"
)

// ReseedCmd returns the reseed command.
func ReseedCmd(a *app) *Command {
	flags := flag.NewFlagSet("reseed", flag.ContinueOnError)
	force := flags.Bool("force", false, "Discard the ledger history")
	name := flags.String("name", "", "New project `name` (default: keep the current one)")

	return &Command{
		Flags: flags,
		Usage: "reseed --force [--name <name>]",
		Short: "Reset the repository to a fresh TRUTH_V1",
		Long: `Replace the ledger with a single seed entry, set the version marker to 1 and
empty the archive and index roots. Release archives and drafts are deleted.
A backup of the repository is written first.

Without --force an interactive terminal is asked to confirm.`,
		Mutates: true,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := noArgs(args)
			if err != nil {
				return err
			}

			if !*force {
				ok, err := a.confirm("Reseed discards the ledger history and release archives. Continue?")
				if err != nil {
					return err
				}

				*force = ok
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			out, err := m.Reseed(ctx, truth.ReseedRequest{Name: *name, Force: *force})
			if err != nil {
				if errors.Is(err, truth.ErrReseedNotForced) {
					return errors.New("reseed discards the ledger history; pass --force")
				}

				return err
			}

			if out.PolicyWritten != "" {
				o.Warn("no policy document found; wrote defaults to " + out.PolicyWritten)
			}

			o.Printf("OK: reseeded %s at TRUTH_V1\n", out.Project)
			o.Println("BACKUP:", out.Backup)

			return nil
		},
	}
}

// RepairCmd returns the repair command.
func RepairCmd(a *app) *Command {
	flags := flag.NewFlagSet("repair", flag.ContinueOnError)
	dryRun := flags.Bool("dry-run", false, "Show what would be fixed without writing")

	return &Command{
		Flags: flags,
		Usage: "repair [--dry-run]",
		Short: "Remove a trailing unterminated entry",
		Long: `Truncate a trailing entry that has a header but no END and set the version
marker to the highest remaining version. An unterminated entry anywhere else
is not repaired.`,
		Mutates: true,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := noArgs(args)
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			out, err := m.Repair(ctx, *dryRun)
			if err != nil {
				return err
			}

			switch {
			case out.Truncated == 0:
				o.Printf("OK: nothing to repair (TRUTH_V%d)\n", out.Latest)
			case out.DryRun:
				o.Printf("would remove unterminated TRUTH_V%d; marker %d -> %d\n", out.Truncated, out.MarkerWas, out.Latest)
			default:
				o.Printf("OK: removed unterminated TRUTH_V%d; marker %d -> %d\n", out.Truncated, out.MarkerWas, out.Latest)
				o.Println("BACKUP:", out.Backup)
			}

			return nil
		},
	}
}
