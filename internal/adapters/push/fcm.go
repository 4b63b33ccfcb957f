// Package push delivers mobile notifications through Firebase Cloud Messaging.
package push

import (
	"context"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/dkeye/groupchat/internal/domain"
)

// maxBatch is the FCM multicast limit.
const maxBatch = 500

type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCM implements core.Pusher.
type FCM struct {
	client multicaster
	now    func() time.Time
}

func NewFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, "init firebase app")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "init firebase messaging")
	}
	log.Info().Str("module", "push").Msg("firebase messaging initialized")
	return &FCM{client: client, now: time.Now}, nil
}

// Deliver sends n to every token, in batches. A transport error aborts the
// remaining batches; per-token failures are only reported.
func (f *FCM) Deliver(ctx context.Context, tokens []string, n domain.Notification) (domain.DeliveryReport, error) {
	var report domain.DeliveryReport
	for start := 0; start < len(tokens); start += maxBatch {
		end := min(start+maxBatch, len(tokens))
		batch := tokens[start:end]
		br, err := f.client.SendEachForMulticast(ctx, BuildMulticast(batch, n, f.now()))
		if err != nil {
			return report, errors.Wrap(err, "fcm multicast")
		}
		report.SuccessCount += br.SuccessCount
		report.FailureCount += br.FailureCount
		for i, r := range br.Responses {
			if r.Success || i >= len(batch) {
				continue
			}
			reason := "unknown"
			if r.Error != nil {
				reason = r.Error.Error()
			}
			report.Failed = append(report.Failed, domain.FailedToken{Token: batch[i], Reason: reason})
		}
	}
	return report, nil
}

// BuildMulticast shapes a high-priority notification for Android and APNs.
func BuildMulticast(tokens []string, n domain.Notification, now time.Time) *messaging.MulticastMessage {
	data := make(map[string]string, len(n.Data)+2)
	data["type"] = "message"
	data["timestamp"] = now.UTC().Format(time.RFC3339)
	for k, v := range n.Data {
		data[k] = v
	}
	badge := 1
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default", Badge: &badge},
			},
		},
	}
}
