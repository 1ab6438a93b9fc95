package cli

import (
	"github.com/spf13/cobra"
)

// NewUserCommand creates the user command group.
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage flatmates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>...",
		Short: "Add users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				for _, name := range args {
					user, err := a.userSvc.Add(cmd.Context(), name)
					if err != nil {
						return err
					}
					printf(cmd, "added %s\n", user.Name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "del <name>...",
		Aliases: []string{"rm", "remove"},
		Short:   "Remove users and their task participations",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				for _, name := range args {
					if err := a.userSvc.Remove(cmd.Context(), name); err != nil {
						return err
					}
					printf(cmd, "removed %s\n", name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				names, err := a.userSvc.ListNames(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					printf(cmd, "%s\n", name)
				}
				return nil
			})
		},
	})

	return cmd
}
