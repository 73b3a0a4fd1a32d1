package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/truth/internal/draft"
	"github.com/calvinalkan/truth/internal/ledger"
	"github.com/calvinalkan/truth/internal/truth"
)

var (
	errStatementRequired = errors.New("--statement-file is required (use - for stdin)")
	errTagRequired       = errors.New("type is required (CONFIRM, DREAM, DEBUG or none)")
)

// MintDraftCmd returns the mint-draft command.
func MintDraftCmd(a *app) *Command {
	flags := flag.NewFlagSet("mint-draft", flag.ContinueOnError)
	statementFile := flags.StringP("statement-file", "f", "", "Read the statement from `file` (- for stdin)")
	notesFile := flags.String("notes-file", "", "Read an optional NOTES section from `file`")
	overwrite := flags.Bool("overwrite", false, "Replace an existing draft")
	tag := flags.StringP("type", "t", "", "Header type tag: CONFIRM, DREAM or DEBUG")

	return &Command{
		Flags: flags,
		Usage: "mint-draft -f <file> [flags]",
		Short: "Write the next entry as a pending draft",
		Long: `Render the next version's entry from a statement file and store it as the
pending draft. Each non-blank statement line becomes a bullet. The ledger is
not touched until confirm-draft.

An existing draft is a conflict unless --overwrite is given or the prompt is
answered with yes.`,
		Mutates: true,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := noArgs(args)
			if err != nil {
				return err
			}

			if *statementFile == "" {
				return errStatementRequired
			}

			statement, err := a.readInput(*statementFile)
			if err != nil {
				return err
			}

			var notes string

			if *notesFile != "" {
				notes, err = a.readInput(*notesFile)
				if err != nil {
					return err
				}
			}

			t, err := parseTag(*tag, true)
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			req := truth.DraftRequest{Statement: statement, Notes: notes, Tag: t, Overwrite: *overwrite}

			d, err := m.MintDraft(ctx, req)
			if errors.Is(err, draft.ErrExists) && *statementFile != "-" {
				var ok bool

				ok, err = a.confirm(fmt.Sprintf("%v. Overwrite?", err))
				if err != nil {
					return err
				}

				if !ok {
					return fmt.Errorf("%w; pass --overwrite to replace it", draft.ErrExists)
				}

				req.Overwrite = true
				d, err = m.MintDraft(ctx, req)
			}

			if err != nil {
				return err
			}

			o.Printf("OK: drafted TRUTH_V%d\n", d.Version)
			o.Println("DRAFT:", d.Path)

			return nil
		},
	}
}

// SetTypeCmd returns the set-type command.
func SetTypeCmd(a *app) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("set-type", flag.ContinueOnError),
		Usage:   "set-type <CONFIRM|DREAM|DEBUG|none>",
		Short:   "Set the type tag of the pending draft",
		Long:    "Rewrite the header type tag of the pending draft. \"none\" removes the tag.",
		Mutates: true,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errTagRequired
			}

			err := noArgs(args[1:])
			if err != nil {
				return err
			}

			tag, err := parseTag(args[0], false)
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			d, err := m.SetDraftType(ctx, tag)
			if err != nil {
				return err
			}

			if tag == "" {
				tag = "none"
			}

			o.Printf("OK: TRUTH_V%d type=%s\n", d.Version, tag)

			return nil
		},
	}
}

// ConfirmDraftCmd returns the confirm-draft command.
func ConfirmDraftCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("confirm-draft", flag.ContinueOnError),
		Usage: "confirm-draft",
		Short: "Append the pending draft to the ledger and build releases",
		Long: `Commit the pending draft as the next ledger entry.

The repository is verified and backed up, the ledger and version marker are
updated, the index is rebuilt and FULL and SLIM release archives are built and
verified. Any failure after the backup restores the ledger and marker and
removes the archives built.`,
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

			res, err := m.ConfirmDraft(ctx)
			if err != nil {
				return err
			}

			printResult(o, "confirmed", res)

			return nil
		},
	}
}

// DiscardDraftCmd returns the discard-draft command.
func DiscardDraftCmd(a *app) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("discard-draft", flag.ContinueOnError),
		Usage:   "discard-draft",
		Short:   "Delete the pending draft",
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

			d, err := m.DiscardDraft(ctx)
			if err != nil {
				return err
			}

			if d == nil {
				o.Warn("no pending draft")

				return nil
			}

			o.Printf("OK: discarded TRUTH_V%d draft\n", d.Version)

			return nil
		},
	}
}

// MintCmd returns the mint command.
func MintCmd(a *app) *Command {
	flags := flag.NewFlagSet("mint", flag.ContinueOnError)
	statementFile := flags.StringP("statement-file", "f", "", "Read the statement from `file` (- for stdin)")
	notesFile := flags.String("notes-file", "", "Read an optional NOTES section from `file`")
	tag := flags.StringP("type", "t", "", "Header type tag: CONFIRM, DREAM or DEBUG")

	return &Command{
		Flags: flags,
		Usage: "mint -f <file> [flags]",
		Short: "Append the next entry immediately, without a draft",
		Long: `Render the next version's entry from a statement file and commit it in one
transaction, like confirm-draft without the draft step.`,
		Mutates: true,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := noArgs(args)
			if err != nil {
				return err
			}

			if *statementFile == "" {
				return errStatementRequired
			}

			statement, err := a.readInput(*statementFile)
			if err != nil {
				return err
			}

			var notes string

			if *notesFile != "" {
				notes, err = a.readInput(*notesFile)
				if err != nil {
					return err
				}
			}

			t, err := parseTag(*tag, true)
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			res, err := m.Mint(ctx, truth.MintRequest{Statement: statement, Notes: notes, Tag: t})
			if err != nil {
				return err
			}

			printResult(o, "minted", res)

			return nil
		},
	}
}

func printResult(o *IO, verb string, res *truth.Result) {
	for _, w := range res.Warnings {
		o.Warn(w)
	}

	o.Printf("OK: %s TRUTH_V%d\n", verb, res.Version)
	o.Println("FULL:", res.Full)
	o.Println("SLIM:", res.Slim)
	o.Println("BACKUP:", res.Backup)
}

// readInput reads path, or stdin for "-". Relative paths resolve against
// the working directory.
func (a *app) readInput(path string) (string, error) {
	if path == "-" {
		if a.in == nil {
			return "", errors.New("stdin is not available")
		}

		data, err := io.ReadAll(a.in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}

		return string(data), nil
	}

	path = a.resolve(path)

	data, err := a.fs.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return string(data), nil
}

// resolve makes path absolute against the working directory.
func (a *app) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(a.cfg.Root, path)
}

// parseTag upper-cases tag and maps "none" to no tag. Empty input is
// accepted only when optional.
func parseTag(tag string, optional bool) (string, error) {
	tag = strings.ToUpper(strings.TrimSpace(tag))

	switch tag {
	case "":
		if !optional {
			return "", errTagRequired
		}

		return "", nil
	case "NONE":
		return "", nil
	case ledger.TagConfirm, ledger.TagDream, ledger.TagDebug:
		return tag, nil
	}

	return "", fmt.Errorf("unknown type %q (want CONFIRM, DREAM, DEBUG or none)", tag)
}
