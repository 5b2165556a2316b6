package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/api"
	"github.com/stretchr/testify/require"
)

var keysToIgnore = map[string]struct{}{
	"timestamp":        {},
	"requestId":        {},
	"createdAt":        {},
	"startsAt":         {},
	"endsAt":           {},
	"expiresAt":        {},
	"confirmedAt":      {},
	"cancelledAt":      {},
	"reference":        {},
	"paymentReference": {},
}

func prepareRequest(method, path string, body io.Reader, headers map[string]string) (*http.Request, error) {
	req := httptest.NewRequest(method, path, body)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func compareResponse(t *testing.T, body io.Reader, expectedResponse string) {
	var actual map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&actual))

	cleanMap(actual)

	var expected map[string]any
	require.NoError(t, json.Unmarshal([]byte(expectedResponse), &expected))

	// ignore indetermistic fields while comparing
	opts := cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		_, ok := keysToIgnore[k]
		return ok
	})

	if diff := cmp.Diff(expected, actual, opts); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func cleanMap(m map[string]any) {
	for k := range m {
		if _, ok := keysToIgnore[k]; ok {
			delete(m, k)
			continue
		}

		switch v := m[k].(type) {
		case map[string]any:
			cleanMap(v)
		case []any:
			for _, item := range v {
				if nested, ok := item.(map[string]any); ok {
					cleanMap(nested)
				}
			}
		}
	}
}

func truncateAll(t testing.TB, db *pgxpool.Pool) {
	t.Helper()

	_, err := db.Exec(context.Background(),
		`TRUNCATE booking_seats, bookings, shows, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func jsonBody(t testing.TB, v any) io.Reader {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return bytes.NewReader(b)
}

// do serves a single request and decodes a successful response into T.
func do[T any](t testing.TB, app *TestApp, method, url string, body any, wantStatus int) T {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = jsonBody(t, body)
	}

	req, err := prepareRequest(method, url, reader, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.App.Routes().ServeHTTP(rec, req)

	require.Equal(t, wantStatus, rec.Code, rec.Body.String())

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))

	return v
}

func registerUser(t testing.TB, app *TestApp, email string) api.UserResponse {
	t.Helper()

	return do[api.UserResponse](t, app, http.MethodPost, "/users", api.RegisterRequest{
		FirstName: TestUserFirstName,
		LastName:  TestUserLastName,
		Email:     email,
		Password:  TestUserPassword,
	}, http.StatusCreated)
}

func createShow(t testing.TB, app *TestApp, totalSeats int, startsIn time.Duration) api.ShowResponse {
	t.Helper()

	startsAt := time.Now().UTC().Add(startsIn).Truncate(time.Second)

	return do[api.ShowResponse](t, app, http.MethodPost, "/shows", api.CreateShowRequest{
		TotalSeats: totalSeats,
		StartsAt:   startsAt,
		EndsAt:     startsAt.Add(TestShowDuration),
	}, http.StatusCreated)
}

func initiateBooking(t testing.TB, app *TestApp, showID, userID int64, seats int) api.BookingResponse {
	t.Helper()

	return do[api.BookingResponse](t, app, http.MethodPost, "/bookings", api.InitiateBookingRequest{
		ShowId: showID,
		UserId: userID,
		Seats:  seatRequests(seats),
	}, http.StatusCreated)
}

func seatRequests(n int) []api.SeatRequest {
	seats := make([]api.SeatRequest, 0, n)
	for i := 1; i <= n; i++ {
		seats = append(seats, api.SeatRequest{
			SeatId:   int64(i),
			Row:      TestSeatRow,
			Number:   i,
			Category: TestSeatCategory,
			Price:    TestSeatPrice,
		})
	}
	return seats
}

func showBody(totalSeats int, startsIn time.Duration) io.Reader {
	startsAt := time.Now().UTC().Add(startsIn).Truncate(time.Second)

	return strings.NewReader(fmt.Sprintf(`{
		"totalSeats": %d,
		"startsAt": %q,
		"endsAt": %q
	}`, totalSeats, startsAt.Format(time.RFC3339), startsAt.Add(TestShowDuration).Format(time.RFC3339)))
}
