package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/mocks"
)

func TestNotificationService_FansOutWithoutBlocking(t *testing.T) {
	var mu sync.Mutex
	got := map[string]notification.Notification{}
	release := make(chan struct{})

	slow := &mocks.NotifierMock{NameValue: "teams", SendFn: func(ctx context.Context, n notification.Notification) error {
		<-release
		mu.Lock()
		got["teams"] = n
		mu.Unlock()
		return nil
	}}
	failing := &mocks.NotifierMock{NameValue: "email", SendFn: func(ctx context.Context, n notification.Notification) error {
		mu.Lock()
		got["email"] = n
		mu.Unlock()
		return errors.New("smtp down")
	}}

	svc := services.NewNotificationService([]ports.Notifier{slow, failing}, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		svc.Notify(ctx, notification.Notification{Title: "Tratativa registrada", Severity: notification.SeverityInfo})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow channel")
	}
	cancel()
	close(release)
	svc.Wait()

	require.Len(t, got, 2)
	assert.Equal(t, "Tratativa registrada", got["teams"].Title)
	assert.False(t, got["email"].CreatedAt.IsZero())
}

func TestNotificationService_BoundsDelivery(t *testing.T) {
	done := make(chan error, 1)
	stuck := &mocks.NotifierMock{SendFn: func(ctx context.Context, n notification.Notification) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	}}
	svc := services.NewNotificationService([]ports.Notifier{stuck}, 20*time.Millisecond, nil)
	svc.Notify(context.Background(), notification.Notification{Title: "x"})
	svc.Wait()
	assert.ErrorIs(t, <-done, context.DeadlineExceeded)
}
