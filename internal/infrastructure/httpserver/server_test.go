package httpserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrecontrole/sentinela/internal/application/services"
	"github.com/torrecontrole/sentinela/internal/core/domain/audit"
	"github.com/torrecontrole/sentinela/internal/core/domain/auth"
	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/core/domain/refresh"
	"github.com/torrecontrole/sentinela/internal/core/ports"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpserver"
	"github.com/torrecontrole/sentinela/internal/infrastructure/metrics"
	"github.com/torrecontrole/sentinela/internal/mocks"
)

// tokens understood by the auth mock
var testUsers = map[string]*auth.Claims{
	"op-token":    {Email: "ana@empresa.com", Role: auth.RoleOperador, Areas: []string{"Fábrica RRP"}},
	"op2-token":   {Email: "bia@empresa.com", Role: auth.RoleOperador},
	"aprov-token": {Email: "caio@empresa.com", Role: auth.RoleAprovador},
	"admin-token": {Email: "dora@empresa.com", Role: auth.RoleAdmin},
}

type testEnv struct {
	srv      *httpserver.Server
	auth     *mocks.AuthServiceMock
	audit    *mocks.AuditServiceMock
	desvios  *mocks.DesvioServiceMock
	data     *mocks.DataSourceMock
	sessions *services.SessionService
}

func newTestEnv(t *testing.T, mutate func(*httpserver.ServerDeps)) *testEnv {
	t.Helper()
	env := &testEnv{
		auth: &mocks.AuthServiceMock{
			ValidateTokenFn: func(ctx context.Context, token string) (*auth.Claims, error) {
				if cl, ok := testUsers[token]; ok {
					return cl, nil
				}
				return nil, errors.New("invalid token")
			},
		},
		audit:   &mocks.AuditServiceMock{},
		desvios: &mocks.DesvioServiceMock{},
		data: &mocks.DataSourceMock{
			LoadFn: func(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
				return desvio.Rows{{desvio.FieldID: 1, desvio.FieldStatus: "Pendente"}}, nil
			},
		},
	}
	env.sessions = services.NewSessionService(services.RefreshConfig{
		Interval:     time.Hour,
		FetchTimeout: time.Second,
		Datasets:     []desvio.Query{{Dataset: "Desvios"}},
	}, env.data, nil, nil)
	t.Cleanup(env.sessions.CloseAll)

	deps := httpserver.ServerDeps{
		AuthService:    env.auth,
		AuditService:   env.audit,
		DesvioService:  env.desvios,
		SessionService: env.sessions,
		DataSource:     env.data,
		Metrics:        metrics.New(nil),
	}
	if mutate != nil {
		mutate(&deps)
	}
	env.srv = httpserver.NewServer(&httpserver.ServerConfig{Heartbeat: 20 * time.Millisecond, DesviosDataset: "Desvios"}, nil, deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		b, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.auth.LoginFn = func(ctx context.Context, req *auth.LoginRequest) (*auth.AuthTokens, error) {
		if req.Password != "segredo1" {
			return nil, services.ErrInvalidCredentials
		}
		return &auth.AuthTokens{AccessToken: "access-x", ExpiresIn: 3600}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "Ana@Empresa.com", "password": "segredo1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access-x", decode[auth.AuthTokens](t, rec).AccessToken)
	require.Len(t, env.audit.Logged, 1)
	assert.Equal(t, audit.ActionLogin, env.audit.Logged[0].Action)
	assert.Equal(t, "ana@empresa.com", env.audit.Logged[0].Actor)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ana@empresa.com", "password": "errada"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ana@empresa.com"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.auth.LoginFn = func(ctx context.Context, req *auth.LoginRequest) (*auth.AuthTokens, error) {
		return nil, errors.New("sharepoint down")
	}
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ana@empresa.com", "password": "segredo1"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/datasets/Desvios", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/datasets/Desvios", nil, "forged").Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	var revoked string
	env.auth.LogoutFn = func(ctx context.Context, token string) error {
		revoked = token
		return nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-token", revoked)
	require.Equal(t, []audit.AuditAction{audit.ActionLogout}, env.audit.Actions())
	assert.Equal(t, map[string]any{"token_hash": "hash:op-token"}, env.audit.Logged[0].Details)
}

func TestListDataset(t *testing.T) {
	env := newTestEnv(t, nil)
	var got desvio.Query
	env.desvios.ListFn = func(ctx context.Context, actor auth.Actor, q desvio.Query) (desvio.Rows, error) {
		assert.Equal(t, []string{"Fábrica RRP"}, actor.Areas)
		got = q
		return desvio.Rows{{desvio.FieldID: 1}, {desvio.FieldID: 2}}, nil
	}

	rec := env.do(t, http.MethodGet, "/api/v1/datasets/Desvios?filter=Status%20eq%20'Pendente'&limit=50", nil, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, desvio.Query{Dataset: "Desvios", Filter: "Status eq 'Pendente'", Limit: 50}, got)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["count"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/datasets/Desvios?limit=-1", nil, "op-token").Code)

	env.desvios.ListFn = func(ctx context.Context, actor auth.Actor, q desvio.Query) (desvio.Rows, error) {
		return nil, &desvio.FetchError{Dataset: q.Dataset, Op: "load", StatusCode: 503, Err: errors.New("unavailable")}
	}
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodGet, "/api/v1/datasets/Desvios", nil, "op-token").Code)
}

func TestGetMotivos(t *testing.T) {
	env := newTestEnv(t, nil)
	env.desvios.MotivosFn = func(ctx context.Context, actor auth.Actor, itemID int) (desvio.Location, []string, error) {
		if itemID == 9 {
			return desvio.Location{}, nil, fmt.Errorf("desvio 9: %w", services.ErrForbidden)
		}
		return desvio.Location{Site: desvio.SiteRRP, POI: "CarregamentoFabricaRRP", Area: desvio.AreaFabrica}, desvio.AreaFabrica.Motivos(), nil
	}

	rec := env.do(t, http.MethodGet, "/api/v1/desvios/7/motivos", nil, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Contains(t, body["motivos"], "Emissão Nota Fiscal")
	assert.Equal(t, "fabrica", body["location"].(map[string]any)["area"])

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/desvios/9/motivos", nil, "op-token").Code)
}

func TestSubmitTratativa(t *testing.T) {
	env := newTestEnv(t, nil)
	env.desvios.SubmitTratativaFn = func(ctx context.Context, actor auth.Actor, itemID int, tr desvio.Tratativa) (desvio.Status, error) {
		assert.Equal(t, "ana@empresa.com", actor.Email)
		switch itemID {
		case 404:
			return "", desvio.ErrNotFound
		case 7:
			return desvio.StatusPreenchido, nil
		}
		return "", &services.ValidationError{Errors: []string{"Motivo é obrigatório"}}
	}

	rec := env.do(t, http.MethodPost, "/api/v1/desvios/7/tratativa", desvio.Tratativa{Motivo: "Manutenção", PrevisaoLiberacao: "02/06/2024 10:00"}, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Preenchido", decode[map[string]any](t, rec)["status"])

	rec = env.do(t, http.MethodPost, "/api/v1/desvios/8/tratativa", desvio.Tratativa{}, "op-token")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []any{"Motivo é obrigatório"}, decode[map[string]any](t, rec)["errors"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/desvios/404/tratativa", desvio.Tratativa{}, "op-token").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/desvios/abc/tratativa", desvio.Tratativa{}, "op-token").Code)
}

func TestReviewDesvios(t *testing.T) {
	env := newTestEnv(t, nil)
	env.desvios.ReviewFn = func(ctx context.Context, actor auth.Actor, req desvio.ReviewRequest) (int, error) {
		if len(req.ItemIDs) > 2 {
			return 2, errors.New("item 3: 409 conflict")
		}
		return len(req.ItemIDs), nil
	}

	req := desvio.ReviewRequest{ItemIDs: []int{1, 2}, Decision: desvio.DecisionApprove}
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/v1/desvios/review", req, "op-token").Code)

	rec := env.do(t, http.MethodPost, "/api/v1/desvios/review", req, "aprov-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["saved"])

	req.ItemIDs = []int{1, 2, 3}
	rec = env.do(t, http.MethodPost, "/api/v1/desvios/review", req, "aprov-token")
	require.Equal(t, http.StatusMultiStatus, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["saved"])
	assert.EqualValues(t, 3, body["total"])
}

func createSession(t *testing.T, env *testEnv, token string, autoRefresh bool) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/sessions", map[string]bool{"auto_refresh": autoRefresh}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id, _ := decode[map[string]any](t, rec)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	id := createSession(t, env, "op-token", false)
	base := "/api/v1/sessions/" + id

	rec := env.do(t, http.MethodGet, base+"/refresh", nil, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, refresh.StateDisabled, decode[refresh.Status](t, rec).State)

	rec = env.do(t, http.MethodPut, base+"/refresh", map[string]bool{"enabled": true}, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[refresh.Status](t, rec)
	assert.True(t, st.Enabled)
	assert.Equal(t, refresh.StateIdle, st.State)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, base+"/refresh", map[string]string{}, "op-token").Code)

	rec = env.do(t, http.MethodPost, base+"/fields", map[string]any{"action": "register", "field": "Motivo", "value": ""}, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, base+"/fields", map[string]any{"action": "change", "field": "Motivo", "value": "Outros"}, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Motivo"}, decode[map[string]any](t, rec)["changed_fields"])
	assert.Equal(t, refresh.StateSuppressed, decodeStatus(t, env, base))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/fields", map[string]any{"action": "typing"}, "op-token").Code)

	rec = env.do(t, http.MethodPost, base+"/refresh", nil, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[refresh.Result](t, rec)
	assert.Equal(t, refresh.TriggerManual, res.Trigger)
	assert.Len(t, res.Datasets["Desvios"], 1)

	rec = env.do(t, http.MethodPost, base+"/fields", map[string]any{"action": "clear_all"}, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, refresh.StateIdle, decodeStatus(t, env, base))

	assert.Equal(t, []audit.AuditAction{audit.ActionRefreshEnable, audit.ActionForceRefresh}, env.audit.Actions())

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, nil, "op-token").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/refresh", nil, "op-token").Code)
}

func decodeStatus(t *testing.T, env *testEnv, base string) refresh.State {
	t.Helper()
	rec := env.do(t, http.MethodGet, base+"/refresh", nil, "op-token")
	require.Equal(t, http.StatusOK, rec.Code)
	return decode[refresh.Status](t, rec).State
}

func TestSessionOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	id := createSession(t, env, "op-token", false)
	base := "/api/v1/sessions/" + id

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, base+"/refresh", nil, "op2-token").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, base+"/refresh", nil, "admin-token").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid/refresh", nil, "op-token").Code)
}

func TestForceRefreshFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.data.LoadFn = func(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
		return nil, errors.New("timeout")
	}
	id := createSession(t, env, "op-token", false)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/refresh", nil, "op-token")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[map[string]any](t, rec)["error"], "timeout")
	assert.Equal(t, 1, decodeStatusFailures(t, env, id))
}

func uuidOf(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

func decodeStatusFailures(t *testing.T, env *testEnv, id string) int {
	t.Helper()
	rec := env.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/refresh", nil, "op-token")
	return decode[refresh.Status](t, rec).ConsecutiveFailures
}

func TestEventStreamDeliversRefreshResults(t *testing.T) {
	env := newTestEnv(t, nil)
	id := createSession(t, env, "op-token", false)

	ts := httptest.NewServer(env.srv.Echo())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/sessions/"+id+"/events?access_token=op-token", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	sess, err := env.sessions.Get(uuidOf(t, id))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sess.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	_, err = sess.Coordinator.ForceRefresh(context.Background())
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok && event == "refresh" {
			data = v
			break
		}
	}
	require.NotEmpty(t, data)
	var res refresh.Result
	require.NoError(t, json.Unmarshal([]byte(data), &res))
	assert.Equal(t, refresh.TriggerManual, res.Trigger)
}

func TestCacheAdministration(t *testing.T) {
	env := newTestEnv(t, nil)
	cleared := false
	env.data.ClearFn = func(ctx context.Context) { cleared = true }
	env.data.StatsFn = func() ports.CacheStats { return ports.CacheStats{Hits: 3, Misses: 1, HitRate: 0.75, Size: 2} }
	env.data.InvalidateDatasetFn = func(ctx context.Context, dataset string) int {
		if dataset == "Desvios" {
			return 2
		}
		return 0
	}

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/cache/stats", nil, "op-token").Code)

	rec := env.do(t, http.MethodGet, "/api/v1/cache/stats", nil, "admin-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.75, decode[ports.CacheStats](t, rec).HitRate, 1e-9)

	rec = env.do(t, http.MethodDelete, "/api/v1/cache/Desvios", nil, "admin-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["invalidated"])

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/v1/cache", nil, "admin-token").Code)
	assert.True(t, cleared)
	assert.Equal(t, []audit.AuditAction{audit.ActionCacheClear, audit.ActionCacheClear}, env.audit.Actions())
}

func TestAuditLogsRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	var got audit.AuditLogFilter
	env.audit.GetAuditLogsFn = func(ctx context.Context, f *audit.AuditLogFilter) (*audit.Page, error) {
		got = *f
		return &audit.Page{
			Logs:    []*audit.AuditLog{{Actor: "ana@empresa.com", Action: "tratativa", ItemID: 42}},
			Total:   1,
			ByClass: map[audit.Class]int{audit.ClassDesvio: 1},
			Limit:   f.Limit,
		}, nil
	}

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/audit/logs", nil, "aprov-token").Code)

	rec := env.do(t, http.MethodGet, "/api/v1/audit/logs?limit=10&class=desvio&action=tratativa&action=reject&resource_id=42&item_id=42", nil, "admin-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, audit.ClassDesvio, got.Class)
	assert.Equal(t, []audit.AuditAction{audit.ActionTratativa, audit.ActionReject}, got.Actions)
	assert.Equal(t, "42", got.ResourceID)
	assert.Equal(t, 42, got.ItemID)

	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, body["total"])
	assert.Equal(t, map[string]any{"desvio": float64(1)}, body["by_class"])
	assert.EqualValues(t, 42, body["logs"].([]any)[0].(map[string]any)["item_id"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/audit/logs?class=bogus", nil, "admin-token").Code)
}

func TestAuditItemHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	var gotDataset string
	env.audit.ItemHistoryFn = func(ctx context.Context, dataset string, itemID int) ([]*audit.AuditLog, error) {
		gotDataset = dataset
		return []*audit.AuditLog{
			{Action: "tratativa", ItemID: itemID},
			{Action: "approve", ItemID: itemID},
		}, nil
	}

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/audit/desvios/42", nil, "op-token").Code)

	rec := env.do(t, http.MethodGet, "/api/v1/audit/desvios/42", nil, "admin-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Desvios", gotDataset)
	body := decode[map[string]any](t, rec)
	assert.Len(t, body["history"], 2)

	env.do(t, http.MethodGet, "/api/v1/audit/desvios/42?dataset=DesviosTLS", nil, "admin-token")
	assert.Equal(t, "DesviosTLS", gotDataset)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/audit/desvios/x", nil, "admin-token").Code)
}

func TestHealthCheck(t *testing.T) {
	healthy := newTestEnv(t, func(d *httpserver.ServerDeps) {
		d.HealthCheckers = []ports.HealthChecker{&mocks.HealthCheckerMock{NameValue: "sharepoint"}}
	})
	rec := healthy.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sentinela", decode[map[string]any](t, rec)["service"])

	degraded := newTestEnv(t, func(d *httpserver.ServerDeps) {
		d.HealthCheckers = []ports.HealthChecker{
			&mocks.HealthCheckerMock{NameValue: "sharepoint"},
			&mocks.HealthCheckerMock{NameValue: "redis", Err: errors.New("refused")},
		}
	})
	rec = degraded.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	deps := decode[map[string]any](t, rec)["dependencies"].(map[string]any)
	assert.Equal(t, "unhealthy", deps["redis"])
	assert.Equal(t, "healthy", deps["sharepoint"])
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	_ = env.do(t, http.MethodGet, "/api/v1/datasets/Desvios", nil, "op-token")

	rec := env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{endpoint="/api/v1/datasets/:name",method="GET",status="200"} 1`)
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	repo := &mocks.RateLimitRepositoryMock{
		IncrementWindowFn: func(ctx context.Context, actor string, window time.Duration, prefix string, ttl time.Duration) (int, time.Time, error) {
			if actor == "ana@empresa.com" {
				return 100, time.Now().Truncate(window), nil
			}
			return 1, time.Now().Truncate(window), nil
		},
	}
	env := newTestEnv(t, func(d *httpserver.ServerDeps) {
		d.RateLimiterService = services.NewRateLimiterService(repo, &services.RateLimiterConfig{DefaultRequestsPerMinute: 10, BurstMultiplier: 1}, nil)
	})

	rec := env.do(t, http.MethodGet, "/api/v1/datasets/Desvios", nil, "op-token")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))

	rec = env.do(t, http.MethodGet, "/api/v1/datasets/Desvios", nil, "op2-token")
	assert.Equal(t, http.StatusOK, rec.Code)
}
