package auth

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"cloudtickets/internal/database"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
)

const testJWTSecret = "test_jwt_secret"

var testLog = logger.NewWriterLogger(io.Discard)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.CreateSchema(context.Background(), db))
	return db
}

// setupTestRedis creates a Redis client backed by miniredis.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func insertDevice(t *testing.T, db *bun.DB, name, key string, active bool) *models.Device {
	t.Helper()
	d := &models.Device{Name: name, APIKey: key, Active: active, CreatedAt: time.Now()}
	_, err := db.NewInsert().Model(d).Exec(context.Background())
	require.NoError(t, err)
	return d
}

func protected(mw func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.With(mw).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFrom(r.Context()); ok {
			w.Write([]byte(p.UserID + ":" + string(p.Role)))
			return
		}
		if d, ok := DeviceFrom(r.Context()); ok {
			w.Write([]byte(d.Name))
			return
		}
		w.WriteHeader(http.StatusTeapot)
	})
	return r
}

func get(h http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(req)
	assert.ErrorIs(t, err, ErrNoToken)

	req.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(req)
	assert.ErrorIs(t, err, ErrNoToken)

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	token, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier(testJWTSecret)
	ctx := context.Background()

	token, err := IssueToken(testJWTSecret, models.Principal{UserID: "42", Email: "staff@example.com", Role: models.RoleStaff}, time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{UserID: "42", Email: "staff@example.com", Role: models.RoleStaff}, p)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := IssueToken("another_secret", models.Principal{UserID: "42", Role: models.RoleAdmin}, time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(ctx, other)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := IssueToken(testJWTSecret, models.Principal{UserID: "42"}, -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(ctx, expired)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			Role:             "ADMIN",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
		}).SignedString([]byte(testJWTSecret))
		require.NoError(t, err)
		_, err = v.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			Role: "ADMIN",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.Verify(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing role defaults to client", func(t *testing.T) {
		token, err := IssueToken(testJWTSecret, models.Principal{UserID: "9"}, time.Hour)
		require.NoError(t, err)
		p, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleClient, p.Role)
	})
}

func TestMiddleware(t *testing.T) {
	h := protected(Middleware(NewHMACVerifier(testJWTSecret), testLog, models.RoleClient, models.RoleAdmin))

	client, err := IssueToken(testJWTSecret, models.Principal{UserID: "7", Role: models.RoleClient}, time.Hour)
	require.NoError(t, err)
	staff, err := IssueToken(testJWTSecret, models.Principal{UserID: "8", Role: models.RoleStaff}, time.Hour)
	require.NoError(t, err)

	w := get(h, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeNoToken)

	w = get(h, "Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeInvalidToken)

	w = get(h, "Authorization", "Bearer "+staff)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeForbidden)

	w = get(h, "Authorization", "Bearer "+client)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7:CLIENT", w.Body.String())
}

func TestRequireRoles(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware(NewHMACVerifier(testJWTSecret), testLog))
	r.With(RequireRoles(models.RoleAdmin, models.RoleStaff)).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client, err := IssueToken(testJWTSecret, models.Principal{UserID: "7", Role: models.RoleClient}, time.Hour)
	require.NoError(t, err)
	admin, err := IssueToken(testJWTSecret, models.Principal{UserID: "1", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(r, "Authorization", "Bearer "+client).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "Authorization", "Bearer "+admin).Code)
}

func TestDeviceMiddleware(t *testing.T) {
	db := setupTestDB(t)
	insertDevice(t, db, "gate-1", "key-active", true)
	insertDevice(t, db, "gate-2", "key-retired", false)

	h := protected(DeviceMiddleware(&DeviceDB{Bun: db}, testLog))

	w := get(h, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeNoAPIKey)

	w = get(h, "X-API-Key", "unknown")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeInvalidDevice)

	w = get(h, "X-API-Key", "key-retired")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.CodeInvalidDevice)

	w = get(h, "X-API-Key", "key-active")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gate-1", w.Body.String())
}

func TestRedisDeviceCache(t *testing.T) {
	db := setupTestDB(t)
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	device := insertDevice(t, db, "gate-1", "key-active", true)
	insertDevice(t, db, "gate-2", "key-retired", false)

	cache := NewRedisDeviceCache(&DeviceDB{Bun: db}, client, 2*time.Second, testLog)

	got, err := cache.DeviceByAPIKey(ctx, "key-active")
	require.NoError(t, err)
	assert.Equal(t, device.ID, got.ID)
	assert.True(t, mr.Exists(cacheKey("key-active")))
	assert.False(t, mr.Exists("device:key-active"), "raw keys must not be stored")

	// served from cache after the row is gone
	_, err = db.NewDelete().Model((*models.Device)(nil)).Where("id = ?", device.ID).Exec(ctx)
	require.NoError(t, err)
	got, err = cache.DeviceByAPIKey(ctx, "key-active")
	require.NoError(t, err)
	assert.Equal(t, "gate-1", got.Name)
	assert.True(t, got.Active)

	mr.FastForward(3 * time.Second)
	_, err = cache.DeviceByAPIKey(ctx, "key-active")
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err = cache.DeviceByAPIKey(ctx, "key-retired")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, mr.Exists(cacheKey("key-retired")), "inactive devices are not cached")
}

func TestRedisDeviceCache_DeactivationLagIsBounded(t *testing.T) {
	cases := []struct {
		name string
		ttl  time.Duration
	}{
		{"long TTL is capped", 30 * time.Second},
		{"zero TTL uses the cap", 0},
		{"cap itself", MaxDeviceCacheTTL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := setupTestDB(t)
			client, mr := setupTestRedis(t)
			ctx := context.Background()
			device := insertDevice(t, db, "gate-1", "key-active", true)

			cache := NewRedisDeviceCache(&DeviceDB{Bun: db}, client, tc.ttl, testLog)
			assert.Equal(t, MaxDeviceCacheTTL, cache.TTL)

			_, err := cache.DeviceByAPIKey(ctx, "key-active")
			require.NoError(t, err)
			assert.Equal(t, MaxDeviceCacheTTL, mr.TTL(cacheKey("key-active")))

			_, err = db.NewUpdate().Model((*models.Device)(nil)).Set("active = ?", false).Where("id = ?", device.ID).Exec(ctx)
			require.NoError(t, err)

			mr.FastForward(MaxDeviceCacheTTL)
			got, err := cache.DeviceByAPIKey(ctx, "key-active")
			require.NoError(t, err)
			assert.False(t, got.Active, "deactivation must be visible once the capped entry expires")
		})
	}
}

func TestRedisDeviceCache_FallsBackWhenRedisIsDown(t *testing.T) {
	db := setupTestDB(t)
	insertDevice(t, db, "gate-1", "key-active", true)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	cache := NewRedisDeviceCache(&DeviceDB{Bun: db}, client, time.Minute, testLog)
	got, err := cache.DeviceByAPIKey(context.Background(), "key-active")
	require.NoError(t, err)
	assert.Equal(t, "gate-1", got.Name)
}

func TestInitializeRedis(t *testing.T) {
	_, mr := setupTestRedis(t)

	client, err := InitializeRedis(context.Background(), mr.Addr(), testLog)
	require.NoError(t, err)
	client.Close()

	_, err = InitializeRedis(context.Background(), "127.0.0.1:1", testLog)
	assert.Error(t, err)
}
