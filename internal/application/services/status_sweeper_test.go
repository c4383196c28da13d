package services_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/mocks"
)

func sweepRows(now time.Time) desvio.Rows {
	ago := func(d time.Duration) string { return now.Add(-d).In(campoGrande).Format(time.RFC3339) }
	return desvio.Rows{
		{desvio.FieldID: 1, desvio.FieldTitle: "EVT-1", desvio.FieldStatus: "Pendente", desvio.FieldCriado: ago(3 * time.Hour)},
		{desvio.FieldID: 2, desvio.FieldTitle: "EVT-1", desvio.FieldStatus: "Preenchido", desvio.FieldCreated: ago(150 * time.Minute)},
		{desvio.FieldID: 3, desvio.FieldTitle: "EVT-2", desvio.FieldStatus: "Pendente", desvio.FieldCriado: ago(time.Hour)},
		{desvio.FieldID: 4, desvio.FieldTitle: "EVT-3", desvio.FieldStatus: "Aprovado", desvio.FieldCriado: ago(10 * time.Hour)},
		{desvio.FieldID: 5, desvio.FieldTitle: "EVT-4", desvio.FieldStatus: "Não Tratado", desvio.FieldCriado: ago(10 * time.Hour)},
		{desvio.FieldID: 6, desvio.FieldTitle: "EVT-5", desvio.FieldStatus: "Reprovado", desvio.FieldCriado: now.Add(-5 * time.Hour).In(campoGrande).Format("02/01/2006 15:04")},
		{desvio.FieldID: 7, desvio.FieldTitle: "EVT-6", desvio.FieldStatus: "Pendente"},
	}
}

func TestStatusSweeper_Expired(t *testing.T) {
	now := time.Date(2024, 6, 10, 14, 0, 0, 0, campoGrande)
	sw := services.NewStatusSweeper(&mocks.DataSourceMock{}, services.DesvioConfig{Location: campoGrande}, 2*time.Hour, nil, nil, nil)

	assert.Equal(t, []int{1, 2, 6}, ids(sw.Expired(sweepRows(now), now)))

	edge := desvio.Rows{{desvio.FieldID: 9, desvio.FieldStatus: "Pendente", desvio.FieldCriado: now.Add(-2 * time.Hour).Format(time.RFC3339)}}
	assert.Empty(t, sw.Expired(edge, now), "exactly at the limit is not expired yet")
}

func TestStatusSweeper_SweepSavesNaoTratado(t *testing.T) {
	now := time.Now()
	var batch desvio.Rows
	src := &mocks.DataSourceMock{
		LoadFn: func(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
			assert.Equal(t, "Desvios", q.Dataset)
			return sweepRows(now), nil
		},
		SaveBatchFn: func(ctx context.Context, dataset string, records desvio.Rows) (int, error) {
			batch = records
			return len(records), nil
		},
	}
	auditSvc := &mocks.AuditServiceMock{}
	notifier := &mocks.NotificationServiceMock{}
	sw := services.NewStatusSweeper(src, services.DesvioConfig{Dataset: "Desvios", Location: campoGrande}, 0, auditSvc, notifier, nil)

	saved, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, saved)

	require.Len(t, batch, 3)
	for _, r := range batch {
		assert.Equal(t, "Não Tratado", r[desvio.FieldStatus])
		assert.Equal(t, auth.SystemActor, r[desvio.FieldAprovadoPor])
		_, err := time.Parse(services.SharePointTimeLayout, r.String(desvio.FieldDataAprovacao))
		require.NoError(t, err)
	}

	assert.Equal(t, []audit.AuditAction{audit.ActionNaoTratado, audit.ActionNaoTratado, audit.ActionNaoTratado}, auditSvc.Actions())
	assert.Equal(t, auth.SystemActor, auditSvc.Logged[0].Actor)
	assert.Equal(t, 1, auditSvc.Logged[0].ItemID)
	assert.Equal(t, "EVT-1", auditSvc.Logged[0].EventTitle)

	notes := notifier.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notification.SeverityWarning, notes[0].Severity)
}

func TestStatusSweeper_NothingExpired(t *testing.T) {
	src := &mocks.DataSourceMock{
		LoadFn: func(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
			return desvio.Rows{{desvio.FieldID: 1, desvio.FieldStatus: "Pendente", desvio.FieldCriado: time.Now().Format(time.RFC3339)}}, nil
		},
		SaveBatchFn: func(ctx context.Context, dataset string, records desvio.Rows) (int, error) {
			t.Fatal("nothing to save")
			return 0, nil
		},
	}
	notifier := &mocks.NotificationServiceMock{}
	sw := services.NewStatusSweeper(src, services.DesvioConfig{Location: campoGrande}, time.Hour, nil, notifier, nil)

	saved, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, saved)
	assert.Empty(t, notifier.Notifications())
}

func TestStatusSweeper_LoadAndSaveFailures(t *testing.T) {
	boom := errors.New("sharepoint down")
	src := &mocks.DataSourceMock{LoadFn: func(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
		return nil, boom
	}}
	sw := services.NewStatusSweeper(src, services.DesvioConfig{Location: campoGrande}, 0, nil, nil, nil)
	_, err := sw.Sweep(context.Background())
	require.ErrorIs(t, err, boom)

	now := time.Now()
	auditSvc := &mocks.AuditServiceMock{}
	src = &mocks.DataSourceMock{
		LoadFn: func(ctx context.Context, q desvio.Query) (desvio.Rows, error) { return sweepRows(now), nil },
		SaveBatchFn: func(ctx context.Context, dataset string, records desvio.Rows) (int, error) {
			return 0, boom
		},
	}
	sw = services.NewStatusSweeper(src, services.DesvioConfig{Location: campoGrande}, 0, auditSvc, nil, nil)
	saved, err := sw.Sweep(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, saved)
	assert.Empty(t, auditSvc.Actions(), "nothing saved, nothing audited")
}

func TestStatusSweeper_RunStopsWithContext(t *testing.T) {
	var loads atomic.Int32
	src := &mocks.DataSourceMock{LoadFn: func(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
		loads.Add(1)
		return nil, nil
	}}
	sw := services.NewStatusSweeper(src, services.DesvioConfig{}, 0, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return loads.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sw.Run(context.Background(), 0)
}
