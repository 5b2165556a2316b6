package ratelimit

import (
	"errors"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

type Config struct {
	IPLimit     int
	IPWindow    time.Duration
	EmailLimit  int
	EmailWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		IPLimit:     5,
		IPWindow:    time.Minute,
		EmailLimit:  3,
		EmailWindow: time.Hour,
	}
}

// Registration throttles sign-up attempts per client IP and per email.
type Registration struct {
	ip    *FixedWindow
	email *FixedWindow
}

func NewRegistration(cfg Config, opts ...Option) *Registration {
	return &Registration{
		ip:    NewFixedWindow(cfg.IPLimit, cfg.IPWindow, append([]Option{WithName("registration_ip")}, opts...)...),
		email: NewFixedWindow(cfg.EmailLimit, cfg.EmailWindow, append([]Option{WithName("registration_email")}, opts...)...),
	}
}

func ipKey(ip string) string {
	return "ip:" + ip
}

func emailKey(email string) string {
	return "email:" + domain.NormalizeEmail(email)
}

func (r *Registration) CheckIP(ip string) error {
	return withMessage(r.ip.TryRequest(ipKey(ip)),
		"Too many registration attempts from this IP. Please try again in 1 minute.")
}

func (r *Registration) CheckEmail(email string) error {
	return withMessage(r.email.TryRequest(emailKey(email)),
		"Too many registration attempts for this email. Please try again in 1 hour.")
}

// ResetEmail clears the email counter after a successful registration.
func (r *Registration) ResetEmail(email string) {
	r.email.Reset(emailKey(email))
}

func (r *Registration) Prune() int {
	return r.ip.Prune() + r.email.Prune()
}

func withMessage(err error, message string) error {
	var limitErr *LimitError
	if errors.As(err, &limitErr) {
		limitErr.Message = message
	}
	return err
}
