// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/memory"
	"github.com/accountd/accountd/internal/health"
	"github.com/accountd/accountd/internal/httpapi"
	"github.com/accountd/accountd/internal/observability"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type noticeBox struct {
	mu      sync.Mutex
	notices []auth.ResetNotice
}

func (b *noticeBox) notify(_ context.Context, n auth.ResetNotice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	return nil
}

func (b *noticeBox) last(t *testing.T) auth.ResetNotice {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.notices, "no reset notice delivered")
	return b.notices[len(b.notices)-1]
}

type staticHealth struct {
	report health.Report
}

func (s staticHealth) Check(context.Context) health.Report { return s.report }

type fixture struct {
	handler http.Handler
	repo    auth.UserRepository
	clock   *clock
	notices *noticeBox
	metrics *observability.Metrics
	logs    *bytes.Buffer
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	repo     auth.UserRepository
	health   httpapi.HealthChecker
	accounts httpapi.AccountService
}

func withRepo(r auth.UserRepository) fixtureOption {
	return func(c *fixtureConfig) { c.repo = r }
}

func withHealth(h httpapi.HealthChecker) fixtureOption {
	return func(c *fixtureConfig) { c.health = h }
}

func withAccounts(a httpapi.AccountService) fixtureOption {
	return func(c *fixtureConfig) { c.accounts = a }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{
		repo: memory.NewUserRepository(),
		health: staticHealth{report: health.Report{
			Status:   health.StatusHealthy,
			Service:  "accountd",
			Database: health.Component{Status: health.ComponentUp},
			Queue:    health.Component{Status: health.ComponentDisabled},
		}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notices := &noticeBox{}

	codec, err := auth.NewTokenCodec(testSecret, auth.WithClock(clk.Now))
	require.NoError(t, err)
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1})
	resets, err := auth.NewPasswordResetServiceWithLogger(cfg.repo, codec, hasher,
		auth.ResetNotifierFunc(notices.notify), 5*time.Minute, logger)
	require.NoError(t, err)
	svc, err := auth.NewAuthServiceWithLogger(cfg.repo, hasher, codec, resets, logger)
	require.NoError(t, err)

	var accounts httpapi.AccountService = svc
	if cfg.accounts != nil {
		accounts = cfg.accounts
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	handler, err := httpapi.NewRouter(httpapi.Config{
		Accounts: accounts,
		Health:   cfg.health,
		Logger:   logger,
		Metrics:  metrics,
	})
	require.NoError(t, err)

	return &fixture{
		handler: handler,
		repo:    cfg.repo,
		clock:   clk,
		notices: notices,
		metrics: metrics,
		logs:    &logs,
	}
}

type response struct {
	Status int
	Header http.Header
	Body   map[string]any
	Raw    string
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	res := response{Status: rec.Code, Header: rec.Header(), Raw: rec.Body.String()}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res.Body), "body: %s", rec.Body.String())
	}
	return res
}

func (f *fixture) signup(t *testing.T, email, password string) int64 {
	t.Helper()
	res := f.do(t, http.MethodPost, "/signup", "", map[string]any{
		"firstname": "A",
		"lastname":  "B",
		"email":     email,
		"password":  password,
		"entity":    "Co",
	})
	require.Equal(t, http.StatusCreated, res.Status, res.Raw)
	return int64(res.Body["user_id"].(float64))
}

func (f *fixture) signin(t *testing.T, email, password string) string {
	t.Helper()
	res := f.do(t, http.MethodPost, "/signin", "", map[string]any{"email": email, "password": password})
	require.Equal(t, http.StatusOK, res.Status, res.Raw)
	return res.Body["token"].(string)
}

func newRequest(t *testing.T, method, path string, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// serve runs req and decodes a JSON body when there is one.
func serve(h http.Handler, req *http.Request) (int, map[string]any) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body) //nolint:errcheck // non-JSON bodies yield nil
	return rec.Code, body
}
