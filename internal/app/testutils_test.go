package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/api"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/config"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/inventory"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/metinatakli/cinex-booking/internal/mocks"
	"github.com/metinatakli/cinex-booking/internal/ratelimit"
	"github.com/metinatakli/cinex-booking/internal/registration"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/retry"
	"github.com/metinatakli/cinex-booking/internal/testutil"
	"github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/metinatakli/cinex-booking/internal/worker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"
)

// inlineTasks runs submitted tasks on the caller's goroutine.
type inlineTasks struct{}

func (inlineTasks) Submit(name string, task worker.Task) error {
	return task(context.Background())
}

type testApplication struct {
	*Application

	clock    *testutil.Clock
	store    *repository.MemoryStore
	payments *mocks.MockPaymentProvider
	mailer   *mailer.MemoryMailer
}

func newTestApplication(t *testing.T) *testApplication {
	t.Helper()

	logger := zaptest.NewLogger(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Second))
	store := repository.NewMemoryStore()
	users := repository.NewMemoryUserRepository()
	payments := new(mocks.MockPaymentProvider)
	m := mailer.NewMemoryMailer(logger)
	guard := lock.NewGuard(lock.NewLocalLocker(), logger)

	executor := retry.NewExecutor(logger)
	executor.BaseDelay = time.Millisecond

	bookings := booking.NewService(booking.Dependencies{
		Bookings: store,
		Shows:    store,
		Payments: payments,
		Retry:    executor,
		Locks:    guard,
		Notifier: booking.NewNotifier(inlineTasks{}, m, users, store, logger),
		Logger:   logger,
	}, booking.WithClock(clock.Now))

	limits := ratelimit.NewRegistration(ratelimit.DefaultConfig())

	t.Cleanup(func() {
		payments.AssertExpectations(t)
	})

	return &testApplication{
		Application: &Application{
			config:       &config.Config{Env: "test"},
			logger:       logger,
			validator:    validator.NewValidator(),
			users:        users,
			inventory:    inventory.NewService(store, executor, logger),
			bookings:     bookings,
			registration: registration.NewService(users, limits, guard, inlineTasks{}, m, logger),
		},
		clock:    clock,
		store:    store,
		payments: payments,
		mailer:   m,
	}
}

// createShow stores a show with the given capacity starting after the test clock.
func (app *testApplication) createShow(t *testing.T, totalSeats int, startsIn time.Duration) domain.Show {
	t.Helper()

	startsAt := app.clock.Now().Add(startsIn)
	show, err := domain.NewShow(totalSeats, startsAt, startsAt.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	if err := app.store.CreateShow(context.Background(), &show); err != nil {
		t.Fatal(err)
	}

	return show
}

func (app *testApplication) serve(t *testing.T, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()

	w, r := executeRequest(t, method, url, body)
	app.Routes().ServeHTTP(w, r)

	return w
}

func executeRequest(t *testing.T, method, url string, body any) (*httptest.ResponseRecorder, *http.Request) {
	var reader *bytes.Reader

	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	return w, r
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return v
}

func checkErrorResponse(t *testing.T, w *httptest.ResponseRecorder, tt struct {
	wantStatus     int
	wantCode       string
	wantErrMessage string
}) {
	t.Helper()

	if tt.wantStatus >= 200 && tt.wantStatus < 300 {
		return
	}

	switch tt.wantStatus {
	case http.StatusUnprocessableEntity:
		if tt.wantCode != "" {
			break
		}

		validationResp := decode[api.ValidationErrorResponse](t, w)

		errorSet := make(map[string]bool)
		for _, vErr := range validationResp.ValidationErrors {
			errorSet[vErr.Issue] = true
		}

		if !errorSet[tt.wantErrMessage] {
			t.Errorf("Expected validation error message '%s' not found in response", tt.wantErrMessage)
		}
		return
	}

	errorResp := decode[api.ErrorResponse](t, w)

	if tt.wantCode != "" && errorResp.Code != tt.wantCode {
		t.Errorf("Error code = %v, want %v", errorResp.Code, tt.wantCode)
	}

	if tt.wantErrMessage != "" && errorResp.Message != tt.wantErrMessage {
		t.Errorf("Error message = %v, want %v", errorResp.Message, tt.wantErrMessage)
	}

	if errorResp.RequestId == "" {
		t.Error("Error response has no request id")
	}
}

func seatRequests(n int) []api.SeatRequest {
	seats := make([]api.SeatRequest, 0, n)
	for i := 1; i <= n; i++ {
		seats = append(seats, api.SeatRequest{
			SeatId:   int64(i),
			Row:      "B",
			Number:   i,
			Category: "REGULAR",
			Price:    decimal.RequireFromString("12.50"),
		})
	}
	return seats
}

func amountOf(want string) any {
	return mock.MatchedBy(func(got decimal.Decimal) bool {
		return got.Equal(decimal.RequireFromString(want))
	})
}
