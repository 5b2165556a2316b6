package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/go-mail/mail/v2"
)

//go:embed "templates"
var templateFS embed.FS

const (
	WelcomeTemplate          = "user_welcome.tmpl"
	BookingConfirmedTemplate = "booking_confirmed.tmpl"
	BookingCancelledTemplate = "booking_cancelled.tmpl"
)

type Mailer interface {
	Send(recipient, templateFile string, data any) error
}

type SMTPMailer struct {
	dialer *mail.Dialer
	sender string
}

func NewSMTPMailer(host string, port int, username, password, sender string) *SMTPMailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return &SMTPMailer{
		dialer: dialer,
		sender: sender,
	}
}

// Send renders the subject, plainBody and htmlBody blocks of templateFile
// with data and delivers the result to recipient.
func (m *SMTPMailer) Send(recipient, templateFile string, data any) error {
	msg, err := render(templateFile, data)
	if err != nil {
		return err
	}

	message := mail.NewMessage()
	message.SetHeader("To", recipient)
	message.SetHeader("From", m.sender)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/plain", msg.PlainBody)
	message.AddAlternative("text/html", msg.HTMLBody)

	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("send %s to %s: %w", templateFile, recipient, err)
	}

	return nil
}

type renderedMessage struct {
	Subject   string
	PlainBody string
	HTMLBody  string
}

func render(templateFile string, data any) (renderedMessage, error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return renderedMessage{}, err
	}

	var msg renderedMessage
	blocks := []struct {
		name string
		dst  *string
	}{
		{"subject", &msg.Subject},
		{"plainBody", &msg.PlainBody},
		{"htmlBody", &msg.HTMLBody},
	}

	for _, b := range blocks {
		buf := new(bytes.Buffer)
		if err := tmpl.ExecuteTemplate(buf, b.name, data); err != nil {
			return renderedMessage{}, fmt.Errorf("render %s of %s: %w", b.name, templateFile, err)
		}
		*b.dst = buf.String()
	}

	return msg, nil
}
