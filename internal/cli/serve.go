package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wgd/internal/bot"
	"wgd/internal/logging"
	"wgd/internal/model"
	"wgd/internal/service"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions

	// NewAPI overrides the Telegram client constructor (for testing).
	NewAPI func(token string) (bot.API, error)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the Telegram bot",
		Long: `Run both wake schedulers, the notification worker, the Telegram command
poller and, if schedule.digest is set, the agenda digest until SIGINT or
SIGTERM.

Under systemd (Type=notify) readiness and shutdown are reported via sd_notify.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func defaultAPI(token string) (bot.API, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.Config
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	newAPI := opts.NewAPI
	if newAPI == nil {
		newAPI = defaultAPI
	}
	api, err := newAPI(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	if botAPI, ok := api.(*tgbotapi.BotAPI); ok {
		a.log.Info().Str("account", botAPI.Self.UserName).Msg("bot authorized")
	}

	notifier := bot.NewNotifier(api, cfg.Telegram.ChatID, cfg.Telegram.SendInterval, 0, logging.Component(a.log, "notifier"))

	wakeOpts := service.WakeOptions{
		LeadTime: cfg.Schedule.AlertLeadTime,
		IdlePoll: cfg.Schedule.IdlePoll,
		MaxSleep: cfg.Schedule.MaxSleep,
		Now:      a.now,
	}
	schedLog := logging.Component(a.log, "scheduler")
	resolver := service.NewRotationResolver(a.tasks, notifier, a.loc)
	dispatcher := service.NewReminderDispatcher(a.reminders, notifier, a.loc)
	taskWake := service.NewWakeScheduler(model.ClassTask, a.oracle, resolver.Fire, wakeOpts, schedLog)
	reminderWake := service.NewWakeScheduler(model.ClassReminder, a.oracle, dispatcher.Fire, wakeOpts, schedLog)
	a.intake.AttachSchedulers(taskWake, reminderWake)

	digest := service.NewDigestService(a.tasks, a.reminders, notifier, a.loc, a.now, logging.Component(a.log, "digest"))
	if spec := cfg.Schedule.DigestSpec(); spec != "" {
		cronSvc := service.NewSchedulerService(a.loc, logging.Component(a.log, "cron"))
		id, err := cronSvc.Schedule(ctx, spec, "digest", digest.Post)
		if err != nil {
			return err
		}
		cronSvc.Start()
		defer cronSvc.Stop()
		a.log.Info().Time("next", cronSvc.Next(id)).Msg("digest scheduled")
	}

	telegramBot := bot.New(api, cfg.Telegram.ChatID, a.userSvc, digest, a.intake, a.loc, logging.Component(a.log, "bot"))

	g, gctx := errgroup.WithContext(ctx)
	run := func(name string, fn func(context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	// The notifier outlives the schedulers so alerts enqueued during
	// shutdown still get flushed.
	notifyCtx, stopNotifier := context.WithCancel(context.Background())
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		_ = notifier.Run(notifyCtx)
	}()

	run("task scheduler", taskWake.Run)
	run("reminder scheduler", reminderWake.Run)
	run("bot", telegramBot.Start)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn().Err(err).Msg("sd_notify ready")
	} else if ok {
		a.log.Debug().Msg("systemd notified")
	}
	a.log.Info().
		Dur("lead", cfg.Schedule.AlertLeadTime).
		Str("tz", a.loc.String()).
		Int64("chat", cfg.Telegram.ChatID).
		Msg("wgd started")

	<-gctx.Done()
	a.log.Info().Msg("shutting down")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		a.log.Warn().Err(err).Msg("sd_notify stopping")
	}

	err = g.Wait()
	stopNotifier()
	<-notifyDone

	sent, dropped, failed := notifier.Stats()
	a.log.Info().Int64("sent", sent).Int64("dropped", dropped).Int64("failed", failed).Msg("shutdown complete")

	return err
}
