package notifications

import (
	"context"
	"testing"
)

func TestInMemoryNotifier_Send(t *testing.T) {
	n := NewInMemoryNotifier()

	var handled []Notification
	n.OnNotification(func(notification Notification) {
		handled = append(handled, notification)
	})

	err := n.Send(context.Background(), Notification{
		Type:     NotificationProviderTimeout,
		TenantID: "t1",
		ModelID:  "m1",
		Message:  "provider deadline exceeded",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := n.GetNotifications()
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	if got[0].Type != NotificationProviderTimeout || got[0].TenantID != "t1" {
		t.Errorf("notification = %+v", got[0])
	}
	if len(handled) != 1 {
		t.Errorf("handler called %d times, want 1", len(handled))
	}

	n.Clear()
	if len(n.GetNotifications()) != 0 {
		t.Error("Clear() should drop recorded notifications")
	}
}
