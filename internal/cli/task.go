package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wgd/internal/service"
)

// TaskAddOptions holds flags for task add.
type TaskAddOptions struct {
	*RootOptions
	Due          string
	Interval     int
	Participants []string
}

// NewTaskCommand creates the task command group.
func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage recurring chores",
	}
	cmd.AddCommand(newTaskAddCommand(rootOpts))
	cmd.AddCommand(newTaskListCommand(rootOpts))
	cmd.AddCommand(newTaskDelCommand(rootOpts))
	return cmd
}

func newTaskAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaskAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Add a recurring task",
		Long: `Add a recurring task rotated among its participants.

A due date in the past is moved forward by whole intervals. Without -p every
current user takes part.

Example:
  wgd task add "Take out the trash" --due 2024-01-01 --interval 7 -p alice -p bob`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, func(a *app) error {
				due, err := time.ParseInLocation("2006-01-02", opts.Due, a.loc)
				if err != nil {
					return fmt.Errorf("invalid --due %q, expected YYYY-MM-DD: %w", opts.Due, err)
				}
				task, err := a.intake.CreateTask(cmd.Context(), service.TaskInput{
					Description:  strings.Join(args, " "),
					Due:          due,
					Interval:     opts.Interval,
					Participants: opts.Participants,
				})
				if err != nil {
					return err
				}
				printf(cmd, "task %d %q due %s every %d days\n", task.ID, task.Description, formatTime(task.NextDueDate, a.loc), task.Interval)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Due, "due", "", "first due date (YYYY-MM-DD, required)")
	cmd.Flags().IntVar(&opts.Interval, "interval", 7, "days between occurrences")
	cmd.Flags().StringSliceVarP(&opts.Participants, "participant", "p", nil, "participating user (repeatable, default all users)")
	_ = cmd.MarkFlagRequired("due")

	return cmd
}

func newTaskListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks with their rotation order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				tasks, err := a.tasks.ListAll(cmd.Context())
				if err != nil {
					return err
				}
				for _, task := range tasks {
					users, err := a.tasks.Participants(cmd.Context(), task.ID)
					if err != nil {
						return err
					}
					names := make([]string, 0, len(users))
					for _, u := range users {
						names = append(names, u.Name)
					}
					printf(cmd, "%d\t%s\t%s\tevery %d d\t%s\n",
						task.ID, formatTime(task.NextDueDate, a.loc), task.Description, task.Interval, strings.Join(names, ", "))
				}
				return nil
			})
		},
	}
}

func newTaskDelCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "del <id>...",
		Aliases: []string{"rm", "remove"},
		Short:   "Remove tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				for _, arg := range args {
					id, err := strconv.ParseUint(arg, 10, 0)
					if err != nil {
						return fmt.Errorf("invalid task id %q", arg)
					}
					if err := a.intake.RemoveTask(cmd.Context(), uint(id)); err != nil {
						return fmt.Errorf("task %d: %w", id, err)
					}
					printf(cmd, "removed task %d\n", id)
				}
				return nil
			})
		},
	}
}
