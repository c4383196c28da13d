// Package sharepoint reads and writes SharePoint list items over the REST API.
package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/torrecontrole/sentinela/internal/core/domain/desvio"
	"github.com/torrecontrole/sentinela/internal/infrastructure/httpclient"
)

const (
	acceptJSON      = "application/json;odata=nometadata"
	defaultPageSize = 2000
	defaultWorkers  = 5
)

type Config struct {
	SiteURL        string
	TenantID       string
	ClientID       string
	ClientSecret   string
	TokenURL       string // defaults to the Azure AD v2 endpoint of TenantID
	Timeout        time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	RequestsPerSec float64
	PageLimit      int
	Workers        int
}

// Client talks to one SharePoint site. Dataset names are list titles.
type Client struct {
	site      string
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	pageLimit int
	workers   int
	logger    *logrus.Logger
}

func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	site := strings.TrimRight(cfg.SiteURL, "/")
	u, err := url.Parse(site)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid sharepoint site url %q", cfg.SiteURL)
	}

	opts := httpclient.Options{
		Timeout:      cfg.Timeout,
		RetryMax:     cfg.RetryMax,
		RetryWaitMin: cfg.RetryWaitMin,
		RetryWaitMax: cfg.RetryWaitMax,
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{u.Scheme + "://" + u.Host + "/.default"},
		}
		opts.Base = cc.Client(context.Background())
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = defaultPageSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Client{
		site:      site,
		http:      httpclient.New(opts, logger),
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		pageLimit: pageLimit,
		workers:   workers,
		logger:    logger,
	}, nil
}

type itemsPage struct {
	Value     []map[string]any `json:"value"`
	NextLink  string           `json:"odata.nextLink"`
	NextLink4 string           `json:"@odata.nextLink"`
}

func (c *Client) itemsURL(list string) string {
	// single quotes are doubled inside OData string literals
	title := strings.ReplaceAll(list, "'", "''")
	return fmt.Sprintf("%s/_api/web/lists/GetByTitle('%s')/items", c.site, url.PathEscape(title))
}

// Load returns up to q.Limit items of the list (the client page limit when
// zero), following server paging.
func (c *Client) Load(ctx context.Context, q desvio.Query) (desvio.Rows, error) {
	if strings.TrimSpace(q.Dataset) == "" {
		return nil, fmt.Errorf("%w: empty dataset name", desvio.ErrMalformedKey)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = c.pageLimit
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(limit))
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	next := c.itemsURL(q.Dataset) + "?" + params.Encode()

	start := time.Now()
	rows := desvio.Rows{}
	for next != "" && len(rows) < limit {
		var page itemsPage
		if err := c.doJSON(ctx, q.Dataset, "load", http.MethodGet, next, nil, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			rows = append(rows, desvio.Record(item))
		}
		next = page.NextLink
		if next == "" {
			next = page.NextLink4
		}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	if c.logger != nil {
		entry := c.logger.WithFields(logrus.Fields{"list": q.Dataset, "items": len(rows), "duration_ms": time.Since(start).Milliseconds()})
		if len(rows) == 0 {
			entry.Warn("sharepoint list is empty")
		} else {
			entry.Info("sharepoint list loaded")
		}
	}
	return rows, nil
}

// Save merges the record's fields into the item named by its ID, or creates
// a new item when the record carries no ID.
func (c *Client) Save(ctx context.Context, dataset string, record desvio.Record) error {
	fields := record.Clone()
	delete(fields, desvio.FieldID)
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	headers := map[string]string{"Content-Type": acceptJSON}
	target := c.itemsURL(dataset)
	op := "create"
	if id := record.ID(); id > 0 {
		target = fmt.Sprintf("%s(%d)", target, id)
		headers["X-HTTP-Method"] = "MERGE"
		headers["IF-MATCH"] = "*"
		op = "update"
	}
	return c.doJSON(ctx, dataset, op, http.MethodPost, target, body, headers, nil)
}

// SaveBatch saves records with a bounded worker pool. One failure does not
// stop the others.
func (c *Client) SaveBatch(ctx context.Context, dataset string, records desvio.Rows) (int, error) {
	var (
		g     errgroup.Group
		ok    atomic.Int32
		mu    sync.Mutex
		errs  []error
		start = time.Now()
	)
	g.SetLimit(c.workers)
	for _, rec := range records {
		g.Go(func() error {
			if err := c.Save(ctx, dataset, rec); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("item %d: %w", rec.ID(), err))
				mu.Unlock()
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	saved := int(ok.Load())
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"list":        dataset,
			"saved":       saved,
			"total":       len(records),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("sharepoint batch update finished")
	}
	return saved, errors.Join(errs...)
}

// Ping reads the site title.
func (c *Client) Ping(ctx context.Context) error {
	var web struct {
		Title string `json:"Title"`
	}
	if err := c.doJSON(ctx, "web", "ping", http.MethodGet, c.site+"/_api/web?$select=Title", nil, nil, &web); err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{"site": web.Title}).Debug("sharepoint connection ok")
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, dataset, op, method, target string, body []byte, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &desvio.FetchError{Dataset: dataset, Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &desvio.FetchError{Dataset: dataset, Op: op, Err: err}
	}
	req.Header.Set("Accept", acceptJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &desvio.FetchError{Dataset: dataset, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &desvio.FetchError{
			Dataset:    dataset,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(snippet))),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &desvio.FetchError{Dataset: dataset, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
