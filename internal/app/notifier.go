package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/groupchat/internal/core"
	"github.com/dkeye/groupchat/internal/domain"
	"github.com/rs/zerolog/log"
)

const attachmentBody = "Sent an attachment"

// Notifier fans a persisted message out to mobile push, fire-and-forget.
// Delivery failures are logged and never reach the sender or roll back
// anything already broadcast.
type Notifier struct {
	store   core.MessageStore
	pusher  core.Pusher
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(store core.MessageStore, pusher core.Pusher, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{store: store, pusher: pusher, timeout: timeout}
}

// NotifyMessage returns immediately; delivery runs in the background.
func (n *Notifier) NotifyMessage(msg domain.Message) {
	if n == nil || n.pusher == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.deliver(ctx, msg); err != nil {
			log.Error().Err(err).Str("module", "app.notifier").Str("room", string(msg.GroupID)).Str("message", string(msg.ID)).Msg("push delivery failed")
		}
	}()
}

func (n *Notifier) deliver(ctx context.Context, msg domain.Message) error {
	tokens, err := n.store.GroupPushTokens(ctx, msg.GroupID, msg.UserID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		log.Debug().Str("module", "app.notifier").Str("room", string(msg.GroupID)).Msg("no push tokens")
		return nil
	}
	report, err := n.pusher.Deliver(ctx, tokens, MessageNotification(msg))
	if err != nil {
		return &core.DeliveryError{Tokens: len(tokens), Err: err}
	}
	for _, f := range report.Failed {
		log.Warn().Str("module", "app.notifier").Str("token", f.Token).Str("reason", f.Reason).Msg("push token rejected")
	}
	log.Info().Str("module", "app.notifier").Str("room", string(msg.GroupID)).Int("success", report.SuccessCount).Int("failed", report.FailureCount).Msg("push delivered")
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

// MessageNotification shapes the push payload for a new group message.
func MessageNotification(msg domain.Message) domain.Notification {
	sender := msg.SenderName
	if sender == "" {
		sender = "Unknown"
	}
	group := msg.GroupName
	if group == "" {
		group = "Group"
	}
	body := msg.Content
	if body == "" {
		body = attachmentBody
	}
	return domain.Notification{
		Title: sender + " in " + group,
		Body:  body,
		Data: map[string]string{
			"type":       "message",
			"messageId":  string(msg.ID),
			"groupId":    string(msg.GroupID),
			"senderId":   string(msg.UserID),
			"senderName": sender,
			"groupName":  group,
		},
	}
}
