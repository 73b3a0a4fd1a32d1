package cli

import (
	"context"
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/truth/internal/archive"
	"github.com/calvinalkan/truth/internal/verify"
)

// VerifyCmd returns the verify command.
func VerifyCmd(a *app) *Command {
	flags := flag.NewFlagSet("verify", flag.ContinueOnError)
	phase := flags.String("phase", string(verify.Pre), "Verification `phase`: pre or post")
	asJSON := flags.Bool("json", false, "Print the report as JSON")

	return &Command{
		Flags: flags,
		Usage: "verify [--phase pre|post] [--json]",
		Short: "Check ledger, marker, hygiene, index and archives",
		Long: `Run the verification engine without changing anything.

pre checks policy and marker authority, the ledger structure and sequence,
marker agreement, hygiene and the index. post also checks the release
archives of the current version and the last backup.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := noArgs(args)
			if err != nil {
				return err
			}

			p, err := verify.ParsePhase(*phase)
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			rep, verr := m.Verify(ctx, p)

			if *asJSON {
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return fmt.Errorf("encode report: %w", err)
				}

				o.Println(string(data))

				return verr
			}

			for _, ev := range rep.Events {
				if ev.OK {
					o.Println("OK:", ev.Message)
				} else {
					o.Println("FAIL:", ev.Message)
				}
			}

			return verr
		},
	}
}

// IndexCmd returns the index command.
func IndexCmd(a *app) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("index", flag.ContinueOnError),
		Usage:   "index",
		Short:   "Rebuild the derived index",
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

			err = m.RebuildIndex(ctx)
			if err != nil {
				return err
			}

			o.Println("OK: index rebuilt")

			return nil
		},
	}
}

// BackupCmd returns the backup command.
func BackupCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("backup", flag.ContinueOnError),
		Usage: "backup",
		Short: "Write and validate a repository backup archive",
		Long: `Write a backup archive of the repository with a BACKUP_MANIFEST.json and
validate it. The destination is backup_dir from the config, or
<parent>/<project>_backups.`,
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

			out, err := m.Backup(ctx)
			if err != nil {
				return err
			}

			o.Printf("OK: backup of %d files\n", out.Files)
			o.Println("BACKUP:", out.Path)
			o.Println("SHA256:", out.SHA256)

			return nil
		},
	}
}

// ValidateBackupCmd returns the validate-backup command.
func ValidateBackupCmd(a *app) *Command {
	flags := flag.NewFlagSet("validate-backup", flag.ContinueOnError)
	asJSON := flags.Bool("json", false, "Print the report as JSON")

	return &Command{
		Flags: flags,
		Usage: "validate-backup <zip> [--json]",
		Short: "Check a backup archive against its manifest",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: want exactly one archive path", errArgsNotAllowed)
			}

			rep, verr := archive.ValidateBackup(a.fs, a.resolve(args[0]))

			if *asJSON {
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return fmt.Errorf("encode report: %w", err)
				}

				o.Println(string(data))

				return verr
			}

			if verr != nil {
				return verr
			}

			o.Printf("OK: %s root=%s files=%d\n", rep.ZipPath, rep.Root, rep.FileCount)

			return nil
		},
	}
}
