package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"wgd/internal/config"
	"wgd/internal/logging"
	"wgd/internal/repository"
	"wgd/internal/service"
)

// RootOptions holds global flags and what PersistentPreRunE derives from them.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	Config config.Config
	Log    zerolog.Logger

	// Now overrides the clock (for testing).
	Now func() time.Time
}

// NewRootCommand creates the wgd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wgd",
		Short: "Flat-share chore rotation and reminder daemon",
		Long: `wgd rotates recurring chores among flatmates and posts due tasks and
calendar reminders to a Telegram group chat.

Configuration comes from a YAML file (--config, default ./wgd.yaml) overlaid
by WGD_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Verbose {
				cfg.Log.Level = "debug"
			}
			opts.Config = cfg
			opts.Log = logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewTaskCommand(opts))
	cmd.AddCommand(NewReminderCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// app bundles the store and services every command works with.
type app struct {
	db        *gorm.DB
	users     *repository.UserRepository
	tasks     *repository.TaskRepository
	reminders *repository.ReminderRepository
	oracle    *service.Oracle
	intake    *service.Intake
	userSvc   *service.UserService
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

func openApp(opts *RootOptions) (*app, error) {
	loc, err := opts.Config.Location()
	if err != nil {
		return nil, &config.ConfigError{Field: "schedule.timezone", Err: err}
	}
	db, err := repository.NewDB(opts.Config.Database.Path, opts.Log)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	a := &app{
		db:        db,
		users:     repository.NewUserRepository(db),
		tasks:     repository.NewTaskRepository(db, loc),
		reminders: repository.NewReminderRepository(db),
		loc:       loc,
		now:       now,
		log:       opts.Log,
	}
	a.oracle = service.NewOracle(a.tasks, a.reminders, now)
	a.intake = service.NewIntake(a.users, a.tasks, a.reminders, a.oracle, now, logging.Component(opts.Log, "intake"))
	a.userSvc = service.NewUserService(a.users, logging.Component(opts.Log, "users"))
	return a, nil
}

func (a *app) Close() {
	sqlDB, err := a.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		a.log.Error().Err(err).Msg("close database")
	}
}

// withApp opens the store for the duration of fn.
func withApp(opts *RootOptions, fn func(a *app) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04")
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
