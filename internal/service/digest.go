package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wgd/internal/model"
	"wgd/internal/repository"
)

// AgendaItem is one upcoming obligation in the agenda.
type AgendaItem struct {
	Obligation model.Obligation
	// Responsible is set for tasks that have at least one participant.
	Responsible *model.User
	Interval    int
}

// DigestService builds the agenda of upcoming tasks and reminders and posts
// it to the household chat.
type DigestService struct {
	tasks     *repository.TaskRepository
	reminders *repository.ReminderRepository
	notifier  Notifier
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

func NewDigestService(tasks *repository.TaskRepository, reminders *repository.ReminderRepository, notifier Notifier, loc *time.Location, now func() time.Time, log zerolog.Logger) *DigestService {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &DigestService{tasks: tasks, reminders: reminders, notifier: notifier, loc: loc, now: now, log: log}
}

// Agenda lists every task with its next responsible user followed by every
// pending reminder, each sorted by due instant.
func (s *DigestService) Agenda(ctx context.Context) ([]AgendaItem, []AgendaItem, error) {
	tasks, err := s.tasks.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tasks: %w", err)
	}
	taskItems := make([]AgendaItem, 0, len(tasks))
	for _, task := range tasks {
		item := AgendaItem{Obligation: model.TaskObligation(task), Interval: task.Interval}
		user, err := s.tasks.NextResponsible(ctx, task.ID)
		switch {
		case err == nil:
			item.Responsible = user
		case errors.Is(err, repository.ErrNoParticipants):
		default:
			return nil, nil, fmt.Errorf("next responsible for task %d: %w", task.ID, err)
		}
		taskItems = append(taskItems, item)
	}

	reminders, err := s.reminders.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list reminders: %w", err)
	}
	reminderItems := make([]AgendaItem, 0, len(reminders))
	for _, reminder := range reminders {
		reminderItems = append(reminderItems, AgendaItem{Obligation: model.ReminderObligation(reminder)})
	}
	return taskItems, reminderItems, nil
}

// Render formats the agenda as Telegram HTML.
func (s *DigestService) Render(ctx context.Context) (string, error) {
	tasks, reminders, err := s.Agenda(ctx)
	if err != nil {
		return "", err
	}
	now := s.now().In(s.loc)

	var builder strings.Builder
	builder.WriteString("📋 <b>Agenda</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Mon 02 Jan 2006")))

	builder.WriteString("🧹 <b>Tasks</b>\n")
	if len(tasks) == 0 {
		builder.WriteString("— no tasks\n")
	}
	for _, item := range tasks {
		builder.WriteString(s.formatTask(item, now))
	}

	builder.WriteString("\n🔔 <b>Reminders</b>\n")
	if len(reminders) == 0 {
		builder.WriteString("— no reminders\n")
	}
	for _, item := range reminders {
		builder.WriteString(fmt.Sprintf("%s %s\n   ⏰ %s\n",
			dueIcon(item.Obligation.Due, now),
			html.EscapeString(item.Obligation.Description),
			formatDue(item.Obligation.Due, s.loc)))
	}

	return strings.TrimSpace(builder.String()), nil
}

// Post sends the rendered agenda through the notifier.
func (s *DigestService) Post(ctx context.Context) error {
	text, err := s.Render(ctx)
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, text)
	s.log.Info().Msg("digest posted")
	return nil
}

func (s *DigestService) formatTask(item AgendaItem, now time.Time) string {
	var sb strings.Builder
	o := item.Obligation

	sb.WriteString(fmt.Sprintf("%s %s", dueIcon(o.Due, now), html.EscapeString(o.Description)))
	if item.Responsible != nil {
		sb.WriteString(fmt.Sprintf(" · <b>%s</b>", html.EscapeString(item.Responsible.Name)))
	} else {
		sb.WriteString(" · <i>nobody</i>")
	}
	sb.WriteString(fmt.Sprintf("\n   ⏰ %s · every %d d", formatDue(o.Due, s.loc), item.Interval))
	sb.WriteByte('\n')
	return sb.String()
}

func dueIcon(due, now time.Time) string {
	switch {
	case now.After(due):
		return "⚠️"
	case due.Sub(now) <= 48*time.Hour:
		return "⏳"
	default:
		return "🟢"
	}
}
