package bot

import (
	"context"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultQueueSize = 256
	drainTimeout     = 5 * time.Second
)

// Sender is the part of tgbotapi.BotAPI used to post messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts obligation alerts to the household chat. Notify only
// enqueues, so it is safe to call inside a store transaction; a single worker
// started by Run delivers the queue at the configured pace.
type Notifier struct {
	sender  Sender
	chatID  int64
	queue   chan string
	limiter *rate.Limiter
	log     zerolog.Logger

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewNotifier creates a notifier for chatID. interval is the minimum spacing
// between two messages; zero disables pacing.
func NewNotifier(sender Sender, chatID int64, interval time.Duration, queueSize int, log zerolog.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Notifier{
		sender:  sender,
		chatID:  chatID,
		queue:   make(chan string, queueSize),
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Notify enqueues text. A full queue drops the message.
func (n *Notifier) Notify(_ context.Context, text string) {
	select {
	case n.queue <- text:
	default:
		n.dropped.Add(1)
		n.log.Warn().Int("queue", cap(n.queue)).Msg("notification queue full, message dropped")
	}
}

// Run delivers queued messages until ctx is cancelled, then tries to flush
// what is left for a short while.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n.drain()
			return nil
		case text := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				n.drainWith(text)
				return nil
			}
			n.send(text)
		}
	}
}

// Stats reports delivery counters.
func (n *Notifier) Stats() (sent, dropped, failed int64) {
	return n.sent.Load(), n.dropped.Load(), n.failed.Load()
}

func (n *Notifier) drainWith(first string) {
	n.send(first)
	n.drain()
}

func (n *Notifier) drain() {
	deadline := time.After(drainTimeout)
	for {
		select {
		case text := <-n.queue:
			n.send(text)
		case <-deadline:
			n.log.Warn().Int("left", len(n.queue)).Msg("notification queue not flushed")
			return
		default:
			return
		}
	}
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.sender.Send(msg); err != nil {
		n.failed.Add(1)
		n.log.Error().Err(err).Int64("chat", n.chatID).Msg("send notification")
		return
	}
	n.sent.Add(1)
}
