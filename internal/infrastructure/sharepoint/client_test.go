package sharepoint_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/infrastructure/sharepoint"
)

func newClient(t *testing.T, siteURL string, mutate ...func(*sharepoint.Config)) *sharepoint.Client {
	t.Helper()
	cfg := sharepoint.Config{
		SiteURL:        siteURL,
		Timeout:        2 * time.Second,
		RetryMax:       2,
		RetryWaitMin:   time.Millisecond,
		RetryWaitMax:   5 * time.Millisecond,
		RequestsPerSec: 1000,
		PageLimit:      2000,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := sharepoint.NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsRelativeSite(t *testing.T) {
	_, err := sharepoint.NewClient(sharepoint.Config{SiteURL: "sites/torre"}, nil)
	require.Error(t, err)
}

func TestLoad_FollowsNextLink(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json;odata=nometadata", r.Header.Get("Accept"))
		assert.Equal(t, "/sites/torre/_api/web/lists/GetByTitle('Desvios')/items", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skiptoken") == "" {
			assert.Equal(t, "3", r.URL.Query().Get("$top"))
			assert.Equal(t, "Status eq 'Pendente'", r.URL.Query().Get("$filter"))
			fmt.Fprintf(w, `{"value":[{"ID":1,"Placa":"AAA"},{"ID":2,"Placa":"BBB"}],"odata.nextLink":"%s/sites/torre/_api/web/lists/GetByTitle('Desvios')/items?$skiptoken=p2"}`, srvURL)
			return
		}
		fmt.Fprint(w, `{"value":[{"ID":3},{"ID":4}]}`)
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := newClient(t, srv.URL+"/sites/torre/")
	rows, err := c.Load(context.Background(), desvio.Query{Dataset: "Desvios", Filter: "Status eq 'Pendente'", Limit: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].ID())
	assert.Equal(t, "AAA", rows[0].String("Placa"))
	assert.Equal(t, 3, rows[2].ID())
}

func TestLoad_EmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	}))
	defer srv.Close()

	rows, err := newClient(t, srv.URL).Load(context.Background(), desvio.Query{Dataset: "Desvios"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLoad_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"value":[{"ID":9}]}`)
	}))
	defer srv.Close()

	rows, err := newClient(t, srv.URL).Load(context.Background(), desvio.Query{Dataset: "Desvios"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoad_FailureIsFetchError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "list unavailable")
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Load(context.Background(), desvio.Query{Dataset: "Desvios"})
	require.Error(t, err)
	var fe *desvio.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	assert.Equal(t, "Desvios", fe.Dataset)
	assert.Contains(t, err.Error(), "list unavailable")
	assert.Equal(t, int32(3), calls.Load(), "three attempts in total")
}

func TestLoad_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Load(context.Background(), desvio.Query{Dataset: "Nope"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSave_UpdateUsesMerge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/_api/web/lists/GetByTitle('Desvios')/items(42)", r.URL.Path)
		assert.Equal(t, "MERGE", r.Header.Get("X-HTTP-Method"))
		assert.Equal(t, "*", r.Header.Get("IF-MATCH"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"Motivo": "Manutenção"}, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newClient(t, srv.URL).Save(context.Background(), "Desvios", desvio.Record{desvio.FieldID: 42, desvio.FieldMotivo: "Manutenção"})
	require.NoError(t, err)
}

func TestSave_CreateWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_api/web/lists/GetByTitle('Desvios')/items", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-HTTP-Method"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ID":100}`)
	}))
	defer srv.Close()

	err := newClient(t, srv.URL).Save(context.Background(), "Desvios", desvio.Record{desvio.FieldTitle: "novo"})
	require.NoError(t, err)
}

func TestSaveBatch_ContinuesPastFailures(t *testing.T) {
	var mu sync.Mutex
	var inFlight, maxInFlight int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()

		if strings.HasSuffix(r.URL.Path, "items(3)") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	records := desvio.Rows{}
	for i := 1; i <= 12; i++ {
		records = append(records, desvio.Record{desvio.FieldID: i, desvio.FieldStatus: "Aprovado"})
	}

	saved, err := newClient(t, srv.URL, func(c *sharepoint.Config) { c.Workers = 5 }).SaveBatch(context.Background(), "Desvios", records)
	assert.Equal(t, 11, saved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 3")
	assert.LessOrEqual(t, maxInFlight, 5)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_api/web", r.URL.Path)
		fmt.Fprint(w, `{"Title":"Torre de Controle"}`)
	}))
	defer srv.Close()

	require.NoError(t, newClient(t, srv.URL).Ping(context.Background()))
}

func TestClient_UsesClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "grant_type=client_credentials")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"Title":"site"}`)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, func(cfg *sharepoint.Config) {
		cfg.ClientID = "app"
		cfg.ClientSecret = "secret"
		cfg.TokenURL = tokenSrv.URL
	})
	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is reused until it expires")
}
