package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/groupchat/internal/core/mocks"
	"github.com/dkeye/groupchat/internal/domain"
	"go.uber.org/mock/gomock"
)

func TestNotifierDeliversToGroupExceptSender(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	pusher := mocks.NewMockPusher(ctrl)
	n := NewNotifier(store, pusher, time.Second)

	msg := domain.Message{ID: "77", GroupID: "5", UserID: "u1", Content: "hello", SenderName: "alice", GroupName: "team"}
	store.EXPECT().GroupPushTokens(gomock.Any(), domain.RoomID("5"), domain.UserID("u1")).
		Return([]string{"t1", "t2"}, nil)
	pusher.EXPECT().Deliver(gomock.Any(), []string{"t1", "t2"}, gomock.Any()).
		DoAndReturn(func(_ context.Context, tokens []string, note domain.Notification) (domain.DeliveryReport, error) {
			if note.Title != "alice in team" || note.Body != "hello" {
				t.Errorf("notification = %+v", note)
			}
			if note.Data["messageId"] != "77" || note.Data["groupId"] != "5" {
				t.Errorf("data = %v", note.Data)
			}
			return domain.DeliveryReport{SuccessCount: 1, FailureCount: 1, Failed: []domain.FailedToken{{Token: "t2", Reason: "unregistered"}}}, nil
		})

	n.NotifyMessage(msg)
	n.Wait()
}

func TestNotifierSkipsEmptyTokenSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	pusher := mocks.NewMockPusher(ctrl)
	n := NewNotifier(store, pusher, time.Second)

	store.EXPECT().GroupPushTokens(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	n.NotifyMessage(domain.Message{ID: "1", GroupID: "5", UserID: "u1", Content: "x"})
	n.Wait()
}

func TestNotifierFailuresAreSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	pusher := mocks.NewMockPusher(ctrl)
	n := NewNotifier(store, pusher, time.Second)

	store.EXPECT().GroupPushTokens(gomock.Any(), gomock.Any(), gomock.Any()).Return([]string{"t1"}, nil)
	pusher.EXPECT().Deliver(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.DeliveryReport{}, errors.New("fcm unavailable"))

	n.NotifyMessage(domain.Message{ID: "1", GroupID: "5", UserID: "u1", Content: "x"})
	n.Wait()
}

func TestNotifierWithoutPusher(t *testing.T) {
	n := NewNotifier(nil, nil, 0)
	n.NotifyMessage(domain.Message{ID: "1"})
	n.Wait()

	var nilNotifier *Notifier
	nilNotifier.NotifyMessage(domain.Message{})
	nilNotifier.Wait()
}

func TestMessageNotificationDefaults(t *testing.T) {
	note := MessageNotification(domain.Message{ID: "1", GroupID: "5", UserID: "u1", FileURL: "/f.png"})
	if note.Title != "Unknown in Group" {
		t.Fatalf("title = %q", note.Title)
	}
	if note.Body != "Sent an attachment" {
		t.Fatalf("body = %q", note.Body)
	}
	if note.Data["type"] != "message" || note.Data["senderId"] != "u1" {
		t.Fatalf("data = %v", note.Data)
	}
}
