// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

//go:build integration

package accounts_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"

	"github.com/accountd/accountd/internal/auth"
	"github.com/accountd/accountd/internal/auth/postgres"
	"github.com/accountd/accountd/internal/health"
	"github.com/accountd/accountd/internal/httpapi"
	"github.com/accountd/accountd/internal/observability"
	"github.com/accountd/accountd/internal/store/storetest"
)

func TestAccounts(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Accounts Integration Suite")
}

const testSecret = "integration-secret-0123456789abcdef"

// outbox captures reset notices instead of mailing them.
type outbox struct {
	mu      sync.Mutex
	notices []auth.ResetNotice
}

func (o *outbox) notify(_ context.Context, n auth.ResetNotice) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, n)
	return nil
}

func (o *outbox) last() auth.ResetNotice {
	o.mu.Lock()
	defer o.mu.Unlock()
	Expect(o.notices).NotTo(BeEmpty(), "no reset notice delivered")
	return o.notices[len(o.notices)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.notices)
}

func (o *outbox) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = nil
}

// testEnv holds the resources shared by the suite.
type testEnv struct {
	ctx    context.Context
	db     *storetest.Database
	server *httptest.Server
	mail   *outbox
}

var env *testEnv

var _ = BeforeSuite(func() {
	ctx := context.Background()
	db, err := storetest.Start(ctx, true)
	Expect(err).NotTo(HaveOccurred())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mail := &outbox{}
	users := postgres.NewUserRepository(db.Pool)
	hasher := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1})
	codec, err := auth.NewTokenCodec([]byte(testSecret))
	Expect(err).NotTo(HaveOccurred())
	resets, err := auth.NewPasswordResetServiceWithLogger(users, codec, hasher,
		auth.ResetNotifierFunc(mail.notify), 5*time.Minute, logger)
	Expect(err).NotTo(HaveOccurred())
	accounts, err := auth.NewAuthServiceWithLogger(users, hasher, codec, resets, logger)
	Expect(err).NotTo(HaveOccurred())

	handler, err := httpapi.NewRouter(httpapi.Config{
		Accounts: accounts,
		Health:   health.NewChecker("accountd", db.Pool, health.WithLogger(logger)),
		Logger:   logger,
		Metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	})
	Expect(err).NotTo(HaveOccurred())

	env = &testEnv{
		ctx:    ctx,
		db:     db,
		server: httptest.NewServer(handler),
		mail:   mail,
	}
})

var _ = AfterSuite(func() {
	if env == nil {
		return
	}
	env.server.Close()
	env.db.Close(env.ctx)
})

var _ = BeforeEach(func() {
	Expect(env.db.Reset(env.ctx)).To(Succeed())
	env.mail.reset()
})

// reply is a decoded API response.
type reply struct {
	Status int
	Body   map[string]any
}

func call(method, path, token string, body any) reply {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close() //nolint:errcheck // test cleanup

	out := reply{Status: resp.StatusCode}
	Expect(json.NewDecoder(resp.Body).Decode(&out.Body)).To(Succeed())
	return out
}

func signup(email, password string) int64 {
	res := call(http.MethodPost, "/signup", "", map[string]any{
		"firstname": "Ada",
		"lastname":  "Lovelace",
		"email":     email,
		"password":  password,
		"entity":    "Analytical Engines",
	})
	Expect(res.Status).To(Equal(http.StatusCreated), "body: %v", res.Body)
	return int64(res.Body["user_id"].(float64))
}

func signin(email, password string) string {
	res := call(http.MethodPost, "/signin", "", map[string]any{"email": email, "password": password})
	Expect(res.Status).To(Equal(http.StatusOK), "body: %v", res.Body)
	return res.Body["token"].(string)
}
