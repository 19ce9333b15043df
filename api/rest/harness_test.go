package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/arcadia-ops/backoffice/api/rest"
	"github.com/arcadia-ops/backoffice/audit"
	"github.com/arcadia-ops/backoffice/authz"
	"github.com/arcadia-ops/backoffice/cache"
	"github.com/arcadia-ops/backoffice/config"
	"github.com/arcadia-ops/backoffice/hierarchy"
	"github.com/arcadia-ops/backoffice/ledger"
	mw "github.com/arcadia-ops/backoffice/middleware"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/arcadia-ops/backoffice/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testPassword   = "secret1"
	testMachineKey = "machine-secret"
)

type harness struct {
	t      *testing.T
	db     *gorm.DB
	cache  cache.Cache
	audit  *audit.Service
	router *gin.Engine
	sec    config.SecurityConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}
	auditSvc := audit.New(db, c, audit.Options{
		QueueSize:     256,
		BatchSize:     1,
		FlushInterval: 10 * time.Millisecond,
	}, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	engine := authz.NewEngine(db)

	router := gin.New()
	router.Use(mw.TraceID())
	rest.RegisterRoutes(router, rest.Deps{
		DB:       db,
		Cache:    c,
		PubSub:   ps,
		Security: sec,
		Ingest:   config.IngestConfig{MachineKey: testMachineKey},
		Engine:   engine,
		Resolver: hierarchy.NewResolver(db),
		Ledger:   ledger.NewService(db, engine, logger),
		Audit:    auditSvc,
		Logger:   logger,
	})

	return &harness{t: t, db: db, cache: c, audit: auditSvc, router: router, sec: sec}
}

// seed creates an account with the shared test password.
func (h *harness) seed(username string, role model.Role, parent *model.Account, balance int64) *model.Account {
	h.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(h.t, err)
	acc := &model.Account{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Balance:      balance,
		IsActive:     true,
	}
	if parent != nil {
		acc.CreatedBy = &parent.ID
	}
	require.NoError(h.t, h.db.Create(acc).Error)
	return acc
}

// token issues a JWT for the account and registers its session in the cache,
// the same state a login would leave behind.
func (h *harness) token(acc *model.Account) string {
	h.t.Helper()
	token, err := mw.GenerateToken(acc.ID, string(acc.Role), h.sec.JWTSecret, h.sec.JWTTTLH)
	require.NoError(h.t, err)

	ctx := context.Background()
	member := strconv.FormatInt(acc.ID, 10)
	require.NoError(h.t, h.cache.Set(ctx, "session:"+token, member, h.sec.JWTTTLH))
	require.NoError(h.t, h.cache.SAdd(ctx, "account_sessions:"+member, token))
	require.NoError(h.t, h.cache.SAdd(ctx, "online:accounts", member))
	return token
}

// do performs a request against the in-memory router.
func (h *harness) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Count      int             `json:"count"`
	Pagination json.RawMessage `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	env := decode(t, w)
	require.True(t, env.Success, "expected success envelope, got: %s", w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// waitForAudit blocks until the async audit writer has persisted want rows
// matching the action.
func (h *harness) waitForAudit(action string, want int64) []model.AuditLog {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		var n int64
		h.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n)
		return n == want
	}, 2*time.Second, 10*time.Millisecond, "audit entries for %s never reached %d", action, want)

	var entries []model.AuditLog
	require.NoError(h.t, h.db.Where("action = ?", action).Find(&entries).Error)
	return entries
}

func (h *harness) reload(id int64) *model.Account {
	h.t.Helper()
	var acc model.Account
	require.NoError(h.t, h.db.First(&acc, id).Error)
	return &acc
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, w.Code, "body: %s", w.Body.String())
}
