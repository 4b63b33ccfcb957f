package push

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/dkeye/groupchat/internal/domain"
)

type fakeMulticast struct {
	batches [][]string
	fail    map[string]bool
	err     error
}

func (f *fakeMulticast) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, m.Tokens)
	br := &messaging.BatchResponse{}
	for _, tok := range m.Tokens {
		if f.fail[tok] {
			br.FailureCount++
			br.Responses = append(br.Responses, &messaging.SendResponse{Error: errors.New("registration-token-not-registered")})
			continue
		}
		br.SuccessCount++
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return br, nil
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBuildMulticast(t *testing.T) {
	n := domain.Notification{Title: "alice in team", Body: "hi", Data: map[string]string{"groupId": "5"}}
	m := BuildMulticast([]string{"t1"}, n, now)

	if m.Notification.Title != "alice in team" || m.Notification.Body != "hi" {
		t.Fatalf("notification = %+v", m.Notification)
	}
	if m.Data["type"] != "message" || m.Data["groupId"] != "5" || m.Data["timestamp"] != "2024-03-01T12:00:00Z" {
		t.Fatalf("data = %v", m.Data)
	}
	if m.Android.Priority != "high" || m.Android.Notification.Sound != "default" {
		t.Fatalf("android = %+v", m.Android)
	}
	if m.APNS.Headers["apns-priority"] != "10" || *m.APNS.Payload.Aps.Badge != 1 {
		t.Fatalf("apns = %+v", m.APNS)
	}
}

func TestDeliverBatchesAndReportsFailures(t *testing.T) {
	tokens := make([]string, 0, 1100)
	for i := 0; i < 1100; i++ {
		tokens = append(tokens, fmt.Sprintf("tok-%d", i))
	}
	fake := &fakeMulticast{fail: map[string]bool{tokens[3]: true, tokens[700]: true}}
	f := &FCM{client: fake, now: func() time.Time { return now }}

	report, err := f.Deliver(context.Background(), tokens, domain.Notification{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.batches) != 3 || len(fake.batches[0]) != 500 || len(fake.batches[2]) != 100 {
		t.Fatalf("batch sizes = %d", len(fake.batches))
	}
	if report.SuccessCount != 1098 || report.FailureCount != 2 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Failed) != 2 || report.Failed[0].Token != tokens[3] || report.Failed[1].Token != tokens[700] {
		t.Fatalf("failed = %+v", report.Failed)
	}
}

func TestDeliverTransportError(t *testing.T) {
	f := &FCM{client: &fakeMulticast{err: errors.New("unavailable")}, now: time.Now}
	if _, err := f.Deliver(context.Background(), []string{"t1"}, domain.Notification{}); err == nil {
		t.Fatal("transport error must surface")
	}
}
