// Package registration creates user accounts while throttling abuse and
// letting only one request per email address proceed at a time.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/metinatakli/cinex-booking/internal/ratelimit"
	"github.com/metinatakli/cinex-booking/internal/worker"
	"go.uber.org/zap"
)

// LockLease bounds how long a registration may hold the per-email lock.
const LockLease = 10 * time.Second

type Tasks interface {
	Submit(name string, task worker.Task) error
}

type Service struct {
	users    domain.UserRepository
	limits   *ratelimit.Registration
	locks    *lock.Guard
	lockOpts lock.Options
	tasks    Tasks
	mailer   mailer.Mailer
	logger   *zap.Logger
}

func NewService(
	users domain.UserRepository,
	limits *ratelimit.Registration,
	locks *lock.Guard,
	tasks Tasks,
	m mailer.Mailer,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:  users,
		limits: limits,
		locks:  locks,
		lockOpts: lock.Options{
			Wait:    lock.DefaultWait,
			Lease:   LockLease,
			OnBusy:  lock.FailFast,
			BusyErr: domain.ErrRegistrationInProgress,
		},
		tasks:  tasks,
		mailer: m,
		logger: logger.With(zap.String("component", "registration")),
	}
}

type Input struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates a user account. Attempts are limited per client IP and
// per email; the email counter is cleared once an account is created.
func (s *Service) Register(ctx context.Context, in Input, clientIP string) (*domain.User, error) {
	if err := s.limits.CheckIP(clientIP); err != nil {
		s.logger.Warn("registration rate limited", zap.String("ip", clientIP))
		return nil, err
	}

	if err := s.limits.CheckEmail(in.Email); err != nil {
		s.logger.Warn("registration rate limited", zap.String("email", domain.NormalizeEmail(in.Email)))
		return nil, err
	}

	email := domain.NormalizeEmail(in.Email)

	user, err := lock.WithLock(ctx, s.locks, lock.RegistrationKey(email), s.lockOpts,
		func(ctx context.Context) (*domain.User, error) {
			_, err := s.users.GetByEmail(ctx, email)
			switch {
			case err == nil:
				return nil, domain.ErrUserAlreadyExists
			case !errors.Is(err, domain.ErrRecordNotFound):
				return nil, err
			}

			user := &domain.User{
				FirstName: in.FirstName,
				LastName:  in.LastName,
				Email:     email,
			}

			if err := user.Password.Set(in.Password); err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}

			if err := s.users.Create(ctx, user); err != nil {
				return nil, err
			}

			return user, nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))

	s.sendWelcome(*user)
	s.limits.ResetEmail(email)

	return user, nil
}

func (s *Service) sendWelcome(user domain.User) {
	err := s.tasks.Submit("welcome email", func(ctx context.Context) error {
		return s.mailer.Send(user.Email, mailer.WelcomeTemplate, map[string]any{
			"FirstName": user.FirstName,
		})
	})
	if err != nil {
		s.logger.Warn("welcome email not scheduled", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}
