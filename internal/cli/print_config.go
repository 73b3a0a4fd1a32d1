package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective tool configuration, the repository policy and which files they were loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Printf("%s", a.cfg.Format())

			pol, err := a.policy()
			if err != nil {
				o.Warn("policy: " + err.Error())

				return nil
			}

			file := pol.File
			if file == "" {
				file = "(defaults)"
			}

			o.Println("")
			o.Println("# policy")
			o.Println("policy_file=" + file)
			o.Println("ledger_file=" + pol.LedgerFile)
			o.Println("version_file=" + pol.VersionFile)
			o.Println("zip_root=" + pol.ZipRoot)
			o.Println("ai_index_root=" + pol.IndexRoot)
			o.Println("draft_root=" + pol.DraftRoot)
			o.Println("core_folders=" + strings.Join(pol.CoreFolders, ","))
			o.Println("truth_phases_required=" + strconv.FormatBool(pol.PhasesRequired))

			return nil
		},
	}
}
