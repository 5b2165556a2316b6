package integration_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/app"
	"github.com/metinatakli/cinex-booking/internal/config"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/metinatakli/cinex-booking/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

// TestApp is the application under test together with handles on its
// backing services.
type TestApp struct {
	App    *app.Application
	DB     *pgxpool.Pool
	Mailer *mailer.MemoryMailer
}

type BaseSuite struct {
	suite.Suite
	app *TestApp
}

func (s *BaseSuite) SetupSuite() {
	t := s.T()

	dsn := testutil.PostgresDSN(t)
	redisAddr := testutil.RedisAddr(t)

	t.Setenv("ENV", "test")
	t.Setenv("STORE", config.StorePostgres)
	t.Setenv("LOCKER", config.LockerRedis)
	t.Setenv("DB_DSN", dsn)
	t.Setenv("REDIS_URL", redisAddr)
	// Every scenario registers from the same address.
	t.Setenv("RATE_LIMIT_IP", "1000")
	t.Setenv("RATE_LIMIT_EMAIL", "1000")
	t.Setenv("RETRY_BASE_DELAY", "5ms")

	cfg, err := config.Load("")
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	m := mailer.NewMemoryMailer(logger)

	application, err := app.New(cfg, logger,
		app.WithMailer(m),
		app.WithPaymentProvider(payment.NewSimulatedPaymentProvider(1)),
	)
	require.NoError(t, err)
	t.Cleanup(application.Close)

	db, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	s.app = &TestApp{
		App:    application,
		DB:     db,
		Mailer: m,
	}
}

func (s *BaseSuite) SetupTest() {
	truncateAll(s.T(), s.app.DB)
}

type Scenario struct {
	Name             string
	Method           string
	URL              string
	Body             io.Reader
	Headers          map[string]string
	ExpectedStatus   int
	ExpectedResponse string
	BeforeTestFunc   func(t testing.TB, app *TestApp)
	AfterTestFunc    func(t testing.TB, app *TestApp, res *http.Response)
}

func (s Scenario) Run(t *testing.T, testApp *TestApp) {
	t.Run(s.Name, func(t *testing.T) {
		req, err := prepareRequest(s.Method, s.URL, s.Body, s.Headers)
		require.NoError(t, err)

		if s.BeforeTestFunc != nil {
			s.BeforeTestFunc(t, testApp)
		}

		rec := httptest.NewRecorder()
		testApp.App.Routes().ServeHTTP(rec, req)

		res := rec.Result()
		defer res.Body.Close()

		assert.Equal(t, s.ExpectedStatus, res.StatusCode)

		if s.ExpectedResponse != "" {
			compareResponse(t, res.Body, s.ExpectedResponse)
		}

		if s.AfterTestFunc != nil {
			s.AfterTestFunc(t, testApp, res)
		}
	})
}
