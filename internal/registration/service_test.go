package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/metinatakli/cinex-booking/internal/mocks"
	"github.com/metinatakli/cinex-booking/internal/ratelimit"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type inlineTasks struct{}

func (inlineTasks) Submit(name string, task worker.Task) error {
	return task(context.Background())
}

var validInput = Input{
	FirstName: "Jane",
	LastName:  "Doe",
	Email:     "Jane@Example.com",
	Password:  "Secret123!",
}

func newUserRepo() *mocks.MockUserRepo {
	return &mocks.MockUserRepo{
		GetByEmailFunc: func(ctx context.Context, email string) (*domain.User, error) {
			return nil, domain.ErrRecordNotFound
		},
		CreateFunc: func(ctx context.Context, user *domain.User) error {
			user.ID = 1
			return nil
		},
	}
}

func newTestService(t *testing.T, users domain.UserRepository, locker lock.Locker, m mailer.Mailer, cfg ratelimit.Config) *Service {
	t.Helper()

	logger := zaptest.NewLogger(t)
	return NewService(users, ratelimit.NewRegistration(cfg), lock.NewGuard(locker, logger), inlineTasks{}, m, logger)
}

func TestRegister(t *testing.T) {
	users := newUserRepo()
	var created *domain.User
	users.CreateFunc = func(ctx context.Context, user *domain.User) error {
		user.ID = 7
		created = user
		return nil
	}

	m := new(mocks.MockMailer)
	m.On("Send", "jane@example.com", mailer.WelcomeTemplate, mock.Anything).Return(nil).Once()

	svc := newTestService(t, users, lock.NewLocalLocker(), m, ratelimit.DefaultConfig())

	user, err := svc.Register(context.Background(), validInput, "10.0.0.1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, user.ID)
	assert.Equal(t, "jane@example.com", created.Email)

	ok, err := created.Password.Matches("Secret123!")
	require.NoError(t, err)
	assert.True(t, ok)

	m.AssertExpectations(t)
}

func TestRegisterExistingEmail(t *testing.T) {
	users := newUserRepo()
	users.GetByEmailFunc = func(ctx context.Context, email string) (*domain.User, error) {
		return &domain.User{ID: 3, Email: email}, nil
	}
	users.CreateFunc = func(ctx context.Context, user *domain.User) error {
		t.Fatal("Create must not be called")
		return nil
	}

	svc := newTestService(t, users, lock.NewLocalLocker(), new(mocks.MockMailer), ratelimit.DefaultConfig())

	_, err := svc.Register(context.Background(), validInput, "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestRegisterRepositoryFailure(t *testing.T) {
	dbErr := errors.New("connection reset")
	users := newUserRepo()
	users.GetByEmailFunc = func(ctx context.Context, email string) (*domain.User, error) {
		return nil, dbErr
	}

	svc := newTestService(t, users, lock.NewLocalLocker(), new(mocks.MockMailer), ratelimit.DefaultConfig())

	_, err := svc.Register(context.Background(), validInput, "10.0.0.1")
	assert.ErrorIs(t, err, dbErr)
}

func TestRegisterIPLimit(t *testing.T) {
	users := newUserRepo()
	users.GetByEmailFunc = func(ctx context.Context, email string) (*domain.User, error) {
		return &domain.User{ID: 3}, nil
	}

	svc := newTestService(t, users, lock.NewLocalLocker(), new(mocks.MockMailer), ratelimit.DefaultConfig())

	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com"}
	for _, email := range emails {
		in := validInput
		in.Email = email
		_, err := svc.Register(context.Background(), in, "10.0.0.9")
		require.ErrorIs(t, err, domain.ErrUserAlreadyExists)
	}

	in := validInput
	in.Email = "f@example.com"
	_, err := svc.Register(context.Background(), in, "10.0.0.9")

	var limitErr *ratelimit.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, "Too many registration attempts from this IP. Please try again in 1 minute.", limitErr.Message)

	_, err = svc.Register(context.Background(), in, "10.0.0.10")
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestRegisterEmailCounterResetOnSuccess(t *testing.T) {
	var attempts atomic.Int32
	users := newUserRepo()
	users.CreateFunc = func(ctx context.Context, user *domain.User) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		user.ID = 1
		return nil
	}

	m := new(mocks.MockMailer)
	m.On("Send", mock.Anything, mailer.WelcomeTemplate, mock.Anything).Return(nil)

	svc := newTestService(t, users, lock.NewLocalLocker(), m, ratelimit.DefaultConfig())
	ctx := context.Background()

	for range 2 {
		_, err := svc.Register(ctx, validInput, "10.0.0.1")
		require.Error(t, err)
	}

	_, err := svc.Register(ctx, validInput, "10.0.0.2")
	require.NoError(t, err)

	// Without the reset this would be the fourth attempt in the window.
	users.GetByEmailFunc = func(ctx context.Context, email string) (*domain.User, error) {
		return &domain.User{ID: 1}, nil
	}
	_, err = svc.Register(ctx, validInput, "10.0.0.3")
	assert.ErrorIs(t, err, domain.ErrUserAlreadyExists)
}

func TestRegisterEmailLimit(t *testing.T) {
	users := newUserRepo()
	users.CreateFunc = func(ctx context.Context, user *domain.User) error {
		return errors.New("transient")
	}

	svc := newTestService(t, users, lock.NewLocalLocker(), new(mocks.MockMailer), ratelimit.DefaultConfig())

	for i := range 3 {
		_, err := svc.Register(context.Background(), validInput, fmt.Sprintf("10.0.0.%d", i+1))
		require.NotErrorIs(t, err, domain.ErrRateLimited)
	}

	_, err := svc.Register(context.Background(), validInput, "10.0.0.4")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestRegisterInProgress(t *testing.T) {
	locker := lock.NewLocalLocker()
	svc := newTestService(t, newUserRepo(), locker, new(mocks.MockMailer), ratelimit.DefaultConfig())

	h, ok, err := locker.Acquire(context.Background(), lock.RegistrationKey("jane@example.com"), 0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer locker.Release(context.Background(), h)

	_, err = svc.Register(context.Background(), validInput, "10.0.0.1")
	assert.ErrorIs(t, err, domain.ErrRegistrationInProgress)
}

func TestConcurrentRegistrationsCreateOneUser(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	m := mailer.NewMemoryMailer(zaptest.NewLogger(t))
	cfg := ratelimit.Config{IPLimit: 100, IPWindow: time.Minute, EmailLimit: 100, EmailWindow: time.Hour}
	svc := newTestService(t, users, lock.NewLocalLocker(), m, cfg)

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := svc.Register(context.Background(), validInput, "10.0.0.1")
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, domain.ErrRegistrationInProgress), errors.Is(err, domain.ErrUserAlreadyExists):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.Len(t, m.Sent(), 1)
}
