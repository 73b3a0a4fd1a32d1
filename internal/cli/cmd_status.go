package cli

import (
	"context"
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"
)

// StatusCmd returns the status command.
func StatusCmd(a *app) *Command {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	asJSON := flags.Bool("json", false, "Print status as JSON")

	return &Command{
		Flags: flags,
		Usage: "status [--json]",
		Short: "Show confirmed version and pending draft",
		Long: `Show the project name, the confirmed version, the next version and the
pending draft, if any. Nothing is modified.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := noArgs(args)
			if err != nil {
				return err
			}

			m, err := a.manager()
			if err != nil {
				return err
			}

			st, err := m.Status(ctx)
			if err != nil {
				return err
			}

			if *asJSON {
				data, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return fmt.Errorf("encode status: %w", err)
				}

				o.Println(string(data))

				return nil
			}

			o.Println("project=" + st.Project)
			o.Printf("confirmed=TRUTH_V%d\n", st.Confirmed)
			o.Printf("next=TRUTH_V%d\n", st.Next)

			if st.Draft == nil {
				o.Println("draft=none")
			} else {
				o.Printf("draft=TRUTH_V%d %s\n", st.Draft.Version, st.Draft.Path)
			}

			return nil
		},
	}
}
