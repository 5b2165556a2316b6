package mailer

import (
	"sync"

	"go.uber.org/zap"
)

type Email struct {
	Recipient    string
	TemplateFile string
	Data         any
}

// MemoryMailer renders messages without delivering them. It is used when no
// SMTP server is configured and in tests.
type MemoryMailer struct {
	logger *zap.Logger

	mu     sync.RWMutex
	emails []Email
	notify chan struct{}
}

func NewMemoryMailer(logger *zap.Logger) *MemoryMailer {
	return &MemoryMailer{
		logger: logger.With(zap.String("component", "mailer")),
		notify: make(chan struct{}, 1),
	}
}

func (m *MemoryMailer) Send(recipient, templateFile string, data any) error {
	msg, err := render(templateFile, data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.emails = append(m.emails, Email{
		Recipient:    recipient,
		TemplateFile: templateFile,
		Data:         data,
	})
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}

	m.logger.Info("email captured",
		zap.String("recipient", recipient),
		zap.String("template", templateFile),
		zap.String("subject", msg.Subject))

	return nil
}

// Sent returns a copy of all captured emails.
func (m *MemoryMailer) Sent() []Email {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emails := make([]Email, len(m.emails))
	copy(emails, m.emails)
	return emails
}

// Notify is signalled after each captured email.
func (m *MemoryMailer) Notify() <-chan struct{} {
	return m.notify
}
