package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewReminderCommand creates the reminder command group.
func NewReminderCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminder",
		Short: "Inspect and manage one-off reminders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pending reminders",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				reminders, err := a.reminders.ListAll(cmd.Context())
				if err != nil {
					return err
				}
				for _, r := range reminders {
					printf(cmd, "%d\t%s\t%s\n", r.ID, formatTime(r.Date, a.loc), r.Description)
				}
				return nil
			})
		},
	})

	var at string
	add := &cobra.Command{
		Use:     "add <text>",
		Short:   "Add a reminder",
		Example: `  wgd reminder add --at "2030-01-31 18:00" Pay rent`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				when, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(at), a.loc)
				if err != nil {
					return fmt.Errorf("invalid --at %q, expected \"YYYY-MM-DD HH:MM\": %w", at, err)
				}
				stored, err := a.intake.ImportReminder(cmd.Context(), strings.Join(args, " "), when)
				if err != nil {
					return err
				}
				if !stored {
					printf(cmd, "skipped: %s is in the past\n", formatTime(when, a.loc))
					return nil
				}
				printf(cmd, "reminder set for %s\n", formatTime(when, a.loc))
				return nil
			})
		},
	}
	add.Flags().StringVar(&at, "at", "", "instant (\"YYYY-MM-DD HH:MM\", required)")
	_ = add.MarkFlagRequired("at")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:     "del <id>...",
		Aliases: []string{"rm", "remove"},
		Short:   "Remove reminders",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				for _, arg := range args {
					id, err := strconv.ParseUint(arg, 10, 0)
					if err != nil {
						return fmt.Errorf("invalid reminder id %q", arg)
					}
					if err := a.reminders.Remove(cmd.Context(), uint(id)); err != nil {
						return fmt.Errorf("reminder %d: %w", id, err)
					}
					printf(cmd, "removed reminder %d\n", id)
				}
				return nil
			})
		},
	})

	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics>...",
		Short: "Import calendar events as reminders",
		Long: `Import every VEVENT of the given iCalendar files as a reminder, using
SUMMARY as text and DTSTART as instant. Events in the past are skipped.
Use - to read from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				for _, path := range args {
					var r io.Reader = cmd.InOrStdin()
					if path != "-" {
						f, err := os.Open(path)
						if err != nil {
							return err
						}
						defer f.Close()
						r = f
					}
					res, err := a.intake.ImportCalendar(cmd.Context(), r)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					printf(cmd, "%s: imported %d, skipped %d\n", path, res.Imported, res.Skipped)
				}
				return nil
			})
		},
	}
}
