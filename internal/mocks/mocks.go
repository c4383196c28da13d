package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/domain/notification"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

// DataSourceMock is a lightweight mock for ports.DataSource. It also serves
// as a ListStore and DatasetReloader.
type DataSourceMock struct {
	LoadFn              func(ctx context.Context, q desvio.Query) (desvio.Rows, error)
	SaveFn              func(ctx context.Context, dataset string, record desvio.Record) error
	SaveBatchFn         func(ctx context.Context, dataset string, records desvio.Rows) (int, error)
	PingFn              func(ctx context.Context) error
	InvalidateFn        func(ctx context.Context, q desvio.Query) error
	InvalidateDatasetFn func(ctx context.Context, dataset string) int
	ClearFn             func(ctx context.Context)
	StatsFn             func() ports.CacheStats
}

func (m *DataSourceMock) Load(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
	if m.LoadFn != nil {
		return m.LoadFn(ctx, q)
	}
	return desvio.Rows{}, nil
}
func (m *DataSourceMock) Save(ctx context.Context, dataset string, record desvio.Record) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, dataset, record)
	}
	return nil
}
func (m *DataSourceMock) SaveBatch(ctx context.Context, dataset string, records desvio.Rows) (int, error) {
	if m.SaveBatchFn != nil {
		return m.SaveBatchFn(ctx, dataset, records)
	}
	return len(records), nil
}
func (m *DataSourceMock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}
func (m *DataSourceMock) Invalidate(ctx context.Context, q desvio.Query) error {
	if m.InvalidateFn != nil {
		return m.InvalidateFn(ctx, q)
	}
	return nil
}
func (m *DataSourceMock) InvalidateDataset(ctx context.Context, dataset string) int {
	if m.InvalidateDatasetFn != nil {
		return m.InvalidateDatasetFn(ctx, dataset)
	}
	return 0
}
func (m *DataSourceMock) Clear(ctx context.Context) {
	if m.ClearFn != nil {
		m.ClearFn(ctx)
	}
}
func (m *DataSourceMock) Stats() ports.CacheStats {
	if m.StatsFn != nil {
		return m.StatsFn()
	}
	return ports.CacheStats{}
}

// NotificationServiceMock records every notification it receives.
type NotificationServiceMock struct {
	mu   sync.Mutex
	Sent []notification.Notification
}

func (m *NotificationServiceMock) Notify(ctx context.Context, n notification.Notification) {
	m.mu.Lock()
	m.Sent = append(m.Sent, n)
	m.mu.Unlock()
}

func (m *NotificationServiceMock) Notifications() []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Notification(nil), m.Sent...)
}

// NotifierMock is a mock notification channel.
type NotifierMock struct {
	NameValue string
	SendFn    func(ctx context.Context, n notification.Notification) error
}

func (m *NotifierMock) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}
func (m *NotifierMock) Send(ctx context.Context, n notification.Notification) error {
	if m.SendFn != nil {
		return m.SendFn(ctx, n)
	}
	return nil
}

// AuditRepositoryMock is a lightweight mock for AuditRepository
type AuditRepositoryMock struct {
	CreateFn        func(ctx context.Context, log *audit.AuditLog) error
	ListFn          func(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, error)
	CountFn         func(ctx context.Context, filter *audit.AuditLogFilter) (int, error)
	CountByActionFn func(ctx context.Context, filter *audit.AuditLogFilter) (map[audit.AuditAction]int, error)
	HistoryFn       func(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error)
}

func (m *AuditRepositoryMock) Create(ctx context.Context, log *audit.AuditLog) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, log)
	}
	return nil
}
func (m *AuditRepositoryMock) List(ctx context.Context, filter *audit.AuditLogFilter) ([]*audit.AuditLog, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	return []*audit.AuditLog{}, nil
}
func (m *AuditRepositoryMock) Count(ctx context.Context, filter *audit.AuditLogFilter) (int, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx, filter)
	}
	return 0, nil
}
func (m *AuditRepositoryMock) CountByAction(ctx context.Context, filter *audit.AuditLogFilter) (map[audit.AuditAction]int, error) {
	if m.CountByActionFn != nil {
		return m.CountByActionFn(ctx, filter)
	}
	return map[audit.AuditAction]int{}, nil
}
func (m *AuditRepositoryMock) History(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error) {
	if m.HistoryFn != nil {
		return m.HistoryFn(ctx, dataset, itemID)
	}
	return []*audit.AuditLog{}, nil
}

// AuditServiceMock records logged actions.
type AuditServiceMock struct {
	mu             sync.Mutex
	Logged         []*audit.CreateAuditLogRequest
	LogActionFn    func(ctx context.Context, req *audit.CreateAuditLogRequest) error
	GetAuditLogsFn func(ctx context.Context, filter *audit.AuditLogFilter) (*audit.Page, error)
	ItemHistoryFn  func(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error)
}

func (m *AuditServiceMock) LogAction(ctx context.Context, req *audit.CreateAuditLogRequest) error {
	m.mu.Lock()
	m.Logged = append(m.Logged, req)
	m.mu.Unlock()
	if m.LogActionFn != nil {
		return m.LogActionFn(ctx, req)
	}
	return nil
}
func (m *AuditServiceMock) GetAuditLogs(ctx context.Context, filter *audit.AuditLogFilter) (*audit.Page, error) {
	if m.GetAuditLogsFn != nil {
		return m.GetAuditLogsFn(ctx, filter)
	}
	return &audit.Page{Logs: []*audit.AuditLog{}}, nil
}
func (m *AuditServiceMock) ItemHistory(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error) {
	if m.ItemHistoryFn != nil {
		return m.ItemHistoryFn(ctx, dataset, itemID)
	}
	return []*audit.AuditLog{}, nil
}

func (m *AuditServiceMock) Actions() []audit.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.AuditAction, 0, len(m.Logged))
	for _, r := range m.Logged {
		out = append(out, r.Action)
	}
	return out
}

// TokenRepositoryMock is a lightweight mock for TokenRepository
type TokenRepositoryMock struct {
	BlacklistTokenFn     func(ctx context.Context, tokenHash string, expiresAt time.Time) error
	IsTokenBlacklistedFn func(ctx context.Context, tokenHash string) (bool, error)
}

func (m *TokenRepositoryMock) IsTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	if m.IsTokenBlacklistedFn != nil {
		return m.IsTokenBlacklistedFn(ctx, tokenHash)
	}
	return false, nil
}
func (m *TokenRepositoryMock) BlacklistToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	if m.BlacklistTokenFn != nil {
		return m.BlacklistTokenFn(ctx, tokenHash, expiresAt)
	}
	return nil
}

// AuthServiceMock is a lightweight mock for AuthService
type AuthServiceMock struct {
	LoginFn         func(ctx context.Context, req *auth.LoginRequest) (*auth.AuthTokens, error)
	ValidateTokenFn func(ctx context.Context, token string) (*auth.Claims, error)
	LogoutFn        func(ctx context.Context, token string) error
}

func (m *AuthServiceMock) Login(ctx context.Context, req *auth.LoginRequest) (*auth.AuthTokens, error) {
	if m.LoginFn != nil {
		return m.LoginFn(ctx, req)
	}
	return nil, fmt.Errorf("not implemented")
}
func (m *AuthServiceMock) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, token)
	}
	return nil, fmt.Errorf("invalid token")
}
func (m *AuthServiceMock) Logout(ctx context.Context, token string) error {
	if m.LogoutFn != nil {
		return m.LogoutFn(ctx, token)
	}
	return nil
}
func (m *AuthServiceMock) GetTokenHash(token string) string { return "hash:" + token }

// RateLimitRepositoryMock is a lightweight mock for RateLimitRepository
type RateLimitRepositoryMock struct {
	IncrementWindowFn func(ctx context.Context, actor string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error)
}

func (m *RateLimitRepositoryMock) IncrementWindow(ctx context.Context, actor string, window time.Duration, keyPrefix string, ttl time.Duration) (int, time.Time, error) {
	if m.IncrementWindowFn != nil {
		return m.IncrementWindowFn(ctx, actor, window, keyPrefix, ttl)
	}
	return 1, time.Now().Truncate(window), nil
}

// CacheMock is an in-memory ports.Cache without expiry.
type CacheMock struct {
	mu      sync.Mutex
	Data    map[string][]byte
	GetErr  error
	SetErr  error
	Gets    int
	Deletes int
}

func NewCacheMock() *CacheMock {
	return &CacheMock{Data: make(map[string][]byte)}
}

func (m *CacheMock) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	v, ok := m.Data[key]
	return v, ok, nil
}
func (m *CacheMock) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.Data[key] = append([]byte(nil), value...)
	return nil
}
func (m *CacheMock) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	delete(m.Data, key)
	return nil
}
func (m *CacheMock) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.Data {
		if strings.HasPrefix(k, prefix) {
			delete(m.Data, k)
			n++
		}
	}
	return n, nil
}

// HealthCheckerMock is a named checker with a fixed result.
type HealthCheckerMock struct {
	NameValue string
	Err       error
}

func (m *HealthCheckerMock) Name() string                    { return m.NameValue }
func (m *HealthCheckerMock) Check(ctx context.Context) error { return m.Err }

// DesvioServiceMock is a lightweight mock for ports.DesvioService
type DesvioServiceMock struct {
	ListFn            func(ctx context.Context, actor auth.Actor, q desvio.Query) (desvio.Rows, error)
	MotivosFn         func(ctx context.Context, actor auth.Actor, itemID int) (desvio.Location, []string, error)
	SubmitTratativaFn func(ctx context.Context, actor auth.Actor, itemID int, t desvio.Tratativa) (desvio.Status, error)
	ReviewFn          func(ctx context.Context, actor auth.Actor, req desvio.ReviewRequest) (int, error)
}

func (m *DesvioServiceMock) List(ctx context.Context, actor auth.Actor, q desvio.Query) (desvio.Rows, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, actor, q)
	}
	return desvio.Rows{}, nil
}
func (m *DesvioServiceMock) Motivos(ctx context.Context, actor auth.Actor, itemID int) (desvio.Location, []string, error) {
	if m.MotivosFn != nil {
		return m.MotivosFn(ctx, actor, itemID)
	}
	return desvio.Location{Area: desvio.AreaOutros}, desvio.AreaOutros.Motivos(), nil
}
func (m *DesvioServiceMock) SubmitTratativa(ctx context.Context, actor auth.Actor, itemID int, t desvio.Tratativa) (desvio.Status, error) {
	if m.SubmitTratativaFn != nil {
		return m.SubmitTratativaFn(ctx, actor, itemID, t)
	}
	return desvio.StatusPendente, nil
}
func (m *DesvioServiceMock) Review(ctx context.Context, actor auth.Actor, req desvio.ReviewRequest) (int, error) {
	if m.ReviewFn != nil {
		return m.ReviewFn(ctx, actor, req)
	}
	return len(req.ItemIDs), nil
}
