package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"energyinsight/internal/config"
	dbpkg "energyinsight/internal/db"
	"energyinsight/internal/energy"
	httpctx "energyinsight/internal/http/ctx"
	"energyinsight/internal/ingest"
	"energyinsight/internal/logger"
	"energyinsight/internal/metrics"
)

func TestMain(m *testing.M) {
	if err := logger.InitWithWriter(io.Discard, "json"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var demoUser = &dbpkg.User{ID: 1, Username: "demo", Email: "demo@example.com"}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Timezone = "UTC"
	return cfg
}

type request struct {
	method      string
	uri         string
	body        []byte
	contentType string
	user        *dbpkg.User
}

func serve(h fasthttp.RequestHandler, r request) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(r.method)
	req.SetRequestURI(r.uri)
	if r.body != nil {
		req.SetBody(r.body)
		ct := r.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.SetContentType(ct)
	}
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	if r.user != nil {
		httpctx.SetUser(&ctx, r.user)
	}
	h(&ctx)
	return &ctx
}

func decode[T any](t *testing.T, ctx *fasthttp.RequestCtx) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &v), string(ctx.Response.Body()))
	return v
}

type fakeReadings struct {
	readings   []energy.Reading
	err        error
	start, end time.Time
	userID     uint
}

func (f *fakeReadings) ReadingsBetween(_ context.Context, userID uint, start, end time.Time) ([]energy.Reading, error) {
	f.userID, f.start, f.end = userID, start, end
	if f.err != nil {
		return nil, f.err
	}
	out := make([]energy.Reading, len(f.readings))
	copy(out, f.readings)
	return out, nil
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestEnergyStats(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeReadings{readings: []energy.Reading{
		{Timestamp: time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC), Category: energy.Solar, Consumption: 3, Generation: 2, OwnerID: 1},
	}}
	h := EnergyStats(src, testConfig(), fixedClock(now))

	t.Run("default timeframe is the month", func(t *testing.T) {
		ctx := serve(h, request{method: "GET", uri: "/api/energy/stats", user: demoUser})

		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, uint(1), src.userID)
		assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), src.start)
		assert.Equal(t, now, src.end)

		s := decode[energy.Summary](t, ctx)
		assert.Equal(t, 3.0, s.TotalConsumption)
		assert.Equal(t, 2.0, s.TotalGeneration.Solar)
		assert.Equal(t, 0.5, s.CarbonFootprint)
		assert.InDelta(t, 66.67, s.RenewablePercentage, 1e-9)
		assert.Equal(t, 0.3, s.SavingsEstimate)
	})

	t.Run("today narrows the window", func(t *testing.T) {
		ctx := serve(h, request{method: "GET", uri: "/api/energy/stats?timeframe=today", user: demoUser})
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), src.start)
	})

	t.Run("unknown timeframe", func(t *testing.T) {
		ctx := serve(h, request{method: "GET", uri: "/api/energy/stats?timeframe=decade", user: demoUser})
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Contains(t, decode[map[string]string](t, ctx)["detail"], "timeframe")
	})

	t.Run("no user", func(t *testing.T) {
		ctx := serve(h, request{method: "GET", uri: "/api/energy/stats"})
		assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	})

	t.Run("store failure", func(t *testing.T) {
		broken := EnergyStats(&fakeReadings{err: errors.New("timeout")}, testConfig(), fixedClock(now))
		ctx := serve(broken, request{method: "GET", uri: "/api/energy/stats", user: demoUser})
		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	})

	t.Run("empty data gives a zero summary", func(t *testing.T) {
		empty := EnergyStats(&fakeReadings{}, testConfig(), fixedClock(now))
		ctx := serve(empty, request{method: "GET", uri: "/api/energy/stats?timeframe=year", user: demoUser})
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, energy.Summary{}, decode[energy.Summary](t, ctx))
	})
}

func TestEnergyData(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeReadings{readings: []energy.Reading{
		{Timestamp: time.Date(2024, 5, 15, 10, 0, 59, 0, time.UTC), Category: energy.Wind, Consumption: 1.005, Generation: 1, OwnerID: 1},
		{Timestamp: time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC), Category: energy.Solar, Consumption: 4, Generation: 0, OwnerID: 1},
		{Timestamp: time.Date(2024, 5, 15, 10, 0, 1, 0, time.UTC), Category: "tidal", Consumption: 2, Generation: 1, OwnerID: 1},
	}}
	h := EnergyData(src, testConfig(), fixedClock(now))

	ctx := serve(h, request{method: "GET", uri: "/api/energy/data?timeframe=today", user: demoUser})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	buckets := decode[[]energy.Bucket](t, ctx)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2024-05-15 09:00", buckets[0].Timestamp)
	assert.Equal(t, "2024-05-15 10:00", buckets[1].Timestamp)
	assert.Equal(t, 2.0, buckets[0].CarbonFootprint)
	assert.Equal(t, 2.0, buckets[1].Generation.Total)
	assert.Equal(t, 1.0, buckets[1].Generation.Wind)
	assert.Equal(t, 0.0, buckets[1].Generation.Solar)

	t.Run("empty data is an empty array", func(t *testing.T) {
		ctx := serve(EnergyData(&fakeReadings{}, testConfig(), fixedClock(now)), request{method: "GET", uri: "/api/energy/data", user: demoUser})
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "[]", string(ctx.Response.Body()))
	})
}

func TestEnergyDataUsesConfiguredZone(t *testing.T) {
	cfg := testConfig()
	cfg.Timezone = "Europe/Berlin"
	loc, err := cfg.Location()
	require.NoError(t, err)

	now := time.Date(2024, 1, 10, 12, 0, 0, 0, loc)
	src := &fakeReadings{readings: []energy.Reading{
		{Timestamp: time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC), Category: energy.Solar, Consumption: 1, OwnerID: 1},
	}}
	ctx := serve(EnergyData(src, cfg, fixedClock(now.UTC())), request{method: "GET", uri: "/api/energy/data?timeframe=today", user: demoUser})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	assert.True(t, src.start.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, loc)))
	buckets := decode[[]energy.Bucket](t, ctx)
	require.Len(t, buckets, 1)
	assert.Equal(t, "2024-01-10 10:30", buckets[0].Timestamp)
}

type fakeAppliances struct {
	items  map[uint][]energy.Appliance
	err    error
	stored []energy.Appliance
}

func (f *fakeAppliances) AppliancesFor(_ context.Context, userID uint) ([]energy.Appliance, error) {
	if f.err != nil {
		return nil, f.err
	}
	if items, ok := f.items[userID]; ok {
		return items, nil
	}
	return energy.DefaultAppliances(), nil
}

func (f *fakeAppliances) ReplaceAppliances(_ context.Context, userID uint, items []energy.Appliance) error {
	if f.err != nil {
		return f.err
	}
	if f.items == nil {
		f.items = map[uint][]energy.Appliance{}
	}
	f.items[userID] = items
	f.stored = items
	return nil
}

func TestAppliances(t *testing.T) {
	store := &fakeAppliances{}
	cfg := testConfig()

	ctx := serve(Appliances(store, cfg), request{method: "GET", uri: "/api/energy/appliances", user: demoUser})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	items := decode[[]energy.Appliance](t, ctx)
	require.Len(t, items, 6)
	assert.Equal(t, "Heating & AC", items[0].Name)
	assert.Equal(t, "kWh", items[0].Unit)

	t.Run("replace", func(t *testing.T) {
		body := []byte(`[{"name":"Heat pump","consumption":2.2,"unit":"kWh","usageHours":6,"timeOfUse":["06:00-08:00"]}]`)
		ctx := serve(ReplaceAppliances(store, cfg), request{method: "PUT", uri: "/api/energy/appliances", body: body, user: demoUser})
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		got := decode[[]energy.Appliance](t, ctx)
		require.Len(t, got, 1)
		assert.Equal(t, "Heat pump", got[0].Name)
		assert.Equal(t, []string{"06:00-08:00"}, store.stored[0].TimeOfUse)
	})

	t.Run("replace rejects bad items", func(t *testing.T) {
		for _, body := range []string{`{`, `[{"name":"","consumption":1}]`, `[{"name":"x","consumption":-1}]`, `[{"name":"x","usageHours":25}]`} {
			ctx := serve(ReplaceAppliances(store, cfg), request{method: "PUT", uri: "/api/energy/appliances", body: []byte(body), user: demoUser})
			assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode(), body)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		ctx := serve(Appliances(&fakeAppliances{err: errors.New("down")}, cfg), request{method: "GET", uri: "/api/energy/appliances", user: demoUser})
		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	})
}

type fakeSink struct {
	got []energy.Reading
	err error
}

func (f *fakeSink) Ingest(_ context.Context, source string, readings []energy.Reading) (ingest.Result, error) {
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	f.got = append(f.got, readings...)
	return ingest.Result{Accepted: len(readings)}, nil
}

func TestIngestReadings(t *testing.T) {
	cfg := testConfig()

	t.Run("accepts valid readings for the caller", func(t *testing.T) {
		sink := &fakeSink{}
		body := []byte(`{"readings":[
			{"timestamp":"2024-05-15T10:00:00Z","energy_type":"solar","consumption":1.5,"generation":0.7,"user_id":99},
			{"timestamp":"2024-05-15 10:01","energy_type":"Wind","consumption":1,"generation":2},
			{"timestamp":"whenever","energy_type":"hydro","consumption":1,"generation":1}
		]}`)
		ctx := serve(IngestReadings(sink, cfg), request{method: "POST", uri: "/api/energy/readings", body: body, user: demoUser})

		require.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
		resp := decode[map[string]any](t, ctx)
		assert.Equal(t, "accepted", resp["status"])
		assert.Equal(t, 2.0, resp["count"])
		assert.Equal(t, 1.0, resp["rejected"])
		require.Len(t, sink.got, 2)
		assert.Equal(t, uint(1), sink.got[0].OwnerID)
		assert.Equal(t, energy.Wind, sink.got[1].Category)
	})

	cases := map[string]string{
		"bad json":      `{"readings":`,
		"empty":         `{"readings":[]}`,
		"nothing valid": `{"readings":[{"timestamp":"2024-05-15T10:00:00Z","energy_type":"solar","consumption":-1}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := serve(IngestReadings(&fakeSink{}, cfg), request{method: "POST", uri: "/api/energy/readings", body: []byte(body), user: demoUser})
			assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		})
	}

	t.Run("store failure", func(t *testing.T) {
		body := []byte(`{"readings":[{"timestamp":"2024-05-15T10:00:00Z","energy_type":"solar","consumption":1,"generation":1}]}`)
		ctx := serve(IngestReadings(&fakeSink{err: errors.New("down")}, cfg), request{method: "POST", uri: "/api/energy/readings", body: body, user: demoUser})
		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	})
}

type fakeAccounts struct {
	users    map[string]*dbpkg.User
	password map[string]string
	issued   int
	err      error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users:    map[string]*dbpkg.User{"demo": demoUser},
		password: map[string]string{"demo": "password"},
	}
}

func (f *fakeAccounts) CreateUser(_ context.Context, username, email, password string) (*dbpkg.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.users[username]; ok {
		return nil, dbpkg.ErrUserExists
	}
	u := &dbpkg.User{ID: uint(len(f.users) + 1), Username: username, Email: email}
	f.users[username] = u
	f.password[username] = password
	return u, nil
}

func (f *fakeAccounts) Authenticate(_ context.Context, username, password string) (*dbpkg.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[username]
	if !ok || f.password[username] != password {
		return nil, dbpkg.ErrInvalidCredentials
	}
	return u, nil
}

func (f *fakeAccounts) IssueToken(_ context.Context, user *dbpkg.User, ttl time.Duration) (*dbpkg.AccessToken, error) {
	f.issued++
	return &dbpkg.AccessToken{UserID: user.ID, Token: dbpkg.TokenPrefix + "test", ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *fakeAccounts) ChangePassword(_ context.Context, user *dbpkg.User, current, next string) error {
	if f.password[user.Username] != current {
		return dbpkg.ErrInvalidCredentials
	}
	f.password[user.Username] = next
	return nil
}

func multipartBody(t *testing.T, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func TestRegister(t *testing.T) {
	cfg := testConfig()
	accounts := newFakeAccounts()
	h := Register(accounts, cfg)

	ctx := serve(h, request{method: "POST", uri: "/register", body: []byte(`{"username":"alice","email":"alice@example.com","password":"s3cret"}`)})
	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	u := decode[map[string]any](t, ctx)
	assert.Equal(t, "alice", u["username"])
	assert.Equal(t, "alice@example.com", u["email"])
	assert.NotContains(t, string(ctx.Response.Body()), "password")

	ctx = serve(h, request{method: "POST", uri: "/register", body: []byte(`{"username":"demo","email":"x@example.com","password":"p"}`)})
	assert.Equal(t, fasthttp.StatusConflict, ctx.Response.StatusCode())

	for _, body := range []string{`nope`, `{"username":"bob","password":"p"}`, `{"username":"","email":"b@example.com","password":"p"}`} {
		ctx = serve(h, request{method: "POST", uri: "/register", body: []byte(body)})
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode(), body)
	}
}

func TestToken(t *testing.T) {
	cfg := testConfig()
	accounts := newFakeAccounts()
	h := Token(accounts, cfg)

	t.Run("multipart form", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"username": "demo", "password": "password"})
		ctx := serve(h, request{method: "POST", uri: "/token", body: body, contentType: ct})

		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
		resp := decode[map[string]any](t, ctx)
		assert.Equal(t, "bearer", resp["token_type"])
		assert.Equal(t, dbpkg.TokenPrefix+"test", resp["access_token"])
		assert.Equal(t, float64(30*60), resp["expires_in"])
	})

	t.Run("urlencoded form", func(t *testing.T) {
		ctx := serve(h, request{method: "POST", uri: "/token", body: []byte("username=demo&password=password"), contentType: "application/x-www-form-urlencoded"})
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	})

	t.Run("wrong password", func(t *testing.T) {
		ctx := serve(h, request{method: "POST", uri: "/token", body: []byte("username=demo&password=nope"), contentType: "application/x-www-form-urlencoded"})
		assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
		assert.Equal(t, "Incorrect username or password", decode[map[string]string](t, ctx)["detail"])
	})

	t.Run("missing fields", func(t *testing.T) {
		ctx := serve(h, request{method: "POST", uri: "/token", body: []byte("username=demo"), contentType: "application/x-www-form-urlencoded"})
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("store failure", func(t *testing.T) {
		broken := newFakeAccounts()
		broken.err = errors.New("down")
		ctx := serve(Token(broken, cfg), request{method: "POST", uri: "/token", body: []byte("username=demo&password=password"), contentType: "application/x-www-form-urlencoded"})
		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	})
}

func TestMeAndPassword(t *testing.T) {
	cfg := testConfig()
	accounts := newFakeAccounts()

	ctx := serve(Me(), request{method: "GET", uri: "/users/me", user: demoUser})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "demo", decode[map[string]any](t, ctx)["username"])

	h := ChangePasswordSelf(accounts, cfg)
	ctx = serve(h, request{method: "POST", uri: "/users/me/password", user: demoUser,
		body: []byte(`{"current_password":"password","new_password":"n3w","confirm_password":"other"}`)})
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = serve(h, request{method: "POST", uri: "/users/me/password", user: demoUser,
		body: []byte(`{"current_password":"wrong","new_password":"n3w","confirm_password":"n3w"}`)})
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = serve(h, request{method: "POST", uri: "/users/me/password", user: demoUser,
		body: []byte(`{"current_password":"password","new_password":"n3w","confirm_password":"n3w"}`)})
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "n3w", accounts.password["demo"])
}

func TestRootAndMetrics(t *testing.T) {
	ctx := serve(Root(), request{method: "GET", uri: "/"})
	assert.Equal(t, "Welcome to Renewable Energy API", decode[map[string]string](t, ctx)["message"])

	ctx = serve(Healthz(), request{method: "GET", uri: "/healthz"})
	assert.Equal(t, "ok", string(ctx.Response.Body()))

	metrics.ReadingsIngested.WithLabelValues("http").Add(0)
	ctx = serve(MetricsHandler(metrics.Registry), request{method: "GET", uri: "/metrics?prefix=energyinsight_"})
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Header.ContentType()), "text/plain")
	assert.Contains(t, string(ctx.Response.Body()), "energyinsight_readings_ingested_total")
	assert.NotContains(t, string(ctx.Response.Body()), "go_goroutines")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, logger.InitWithWriter(&buf, "json"))
	defer func() { _ = logger.InitWithWriter(io.Discard, "json") }()

	h := RequestLogger(logger.Get())(func(ctx *fasthttp.RequestCtx) {
		httpctx.SetRequestID(ctx, "req-42")
		ctx.SetStatusCode(fasthttp.StatusTeapot)
	})
	serve(h, request{method: "GET", uri: "/brew", user: demoUser})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "/brew", rec["path"])
	assert.Equal(t, float64(418), rec["status"])
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, float64(1), rec["user_id"])
}
