package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"wgd/internal/service"
)

const remindLayout = "2006-01-02 15:04"

// API is the subset of tgbotapi.BotAPI the bot relies on.
type API interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot answers commands in the household chat. /id works in any chat so the
// chat id can be looked up during setup; everything else is restricted to the
// configured chat.
type Bot struct {
	api    API
	chatID int64
	users  *service.UserService
	digest *service.DigestService
	intake *service.Intake
	loc    *time.Location
	log    zerolog.Logger
}

func New(api API, chatID int64, users *service.UserService, digest *service.DigestService, intake *service.Intake, loc *time.Location, log zerolog.Logger) *Bot {
	if loc == nil {
		loc = time.Local
	}
	return &Bot{api: api, chatID: chatID, users: users, digest: digest, intake: intake, loc: loc, log: log}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Int64("chat", b.chatID).Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error().Err(err).Msg("handle message")
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil || !msg.IsCommand() {
		return nil
	}

	cmd := msg.Command()
	b.log.Debug().Int64("chat", msg.Chat.ID).Str("cmd", cmd).Msg("command")

	if cmd == "id" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Chat id: <code>%d</code>", msg.Chat.ID))
	}
	if msg.Chat.ID != b.chatID {
		b.log.Warn().Int64("chat", msg.Chat.ID).Str("cmd", cmd).Msg("command from foreign chat ignored")
		return nil
	}

	switch cmd {
	case "start", "help":
		return b.handleHelp(msg)
	case "agenda":
		return b.handleAgenda(ctx, msg)
	case "users":
		return b.handleUsers(ctx, msg)
	case "remind":
		return b.handleRemind(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /agenda — upcoming tasks and reminders\n" +
		"• /users — household members\n" +
		"• /remind &lt;YYYY-MM-DD HH:MM&gt; &lt;text&gt; — add a reminder\n" +
		"• /id — show this chat's id"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleAgenda(ctx context.Context, msg *tgbotapi.Message) error {
	text, err := b.digest.Render(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("render agenda")
		return b.sendText(msg.Chat.ID, "Could not build the agenda.")
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleUsers(ctx context.Context, msg *tgbotapi.Message) error {
	names, err := b.users.ListNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return b.sendText(msg.Chat.ID, "No users yet.")
	}
	var sb strings.Builder
	sb.WriteString("👥 <b>Users</b>\n")
	for _, name := range names {
		sb.WriteString("• " + html.EscapeString(name) + "\n")
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleRemind(ctx context.Context, msg *tgbotapi.Message) error {
	at, text, err := parseRemind(msg.CommandArguments(), b.loc)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Usage: <code>/remind 2030-01-31 18:00 Pay rent</code>")
	}

	stored, err := b.intake.ImportReminder(ctx, text, at)
	if err != nil {
		b.log.Error().Err(err).Msg("store reminder")
		return b.sendText(msg.Chat.ID, "Could not store the reminder.")
	}
	if !stored {
		return b.sendText(msg.Chat.ID, "That time is already in the past.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔔 Reminder set for %s: %s",
		at.In(b.loc).Format("Mon 02 Jan 15:04"), html.EscapeString(text)))
}

// parseRemind splits "YYYY-MM-DD HH:MM text" into an instant in loc and the
// reminder text.
func parseRemind(args string, loc *time.Location) (time.Time, string, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return time.Time{}, "", fmt.Errorf("expected date, time and text")
	}
	at, err := time.ParseInLocation(remindLayout, fields[0]+" "+fields[1], loc)
	if err != nil {
		return time.Time{}, "", err
	}
	return at, strings.Join(fields[2:], " "), nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}
