package user

import (
	"context"
	"fmt"
	"net/smtp"
)

// Mailer sends the transactional emails the registry triggers: validation
// codes, reset codes, and unfamiliar-connexion warnings. No mail library
// appears anywhere in the retrieved corpus, so this is built on net/smtp
// directly rather than guessing at an ecosystem choice.
type Mailer interface {
	SendValidationCode(ctx context.Context, toEmail, login, code string) error
	SendResetCode(ctx context.Context, toEmail, login, code string) error
	SendUnfamiliarConnexion(ctx context.Context, toEmail, login, ip, userAgent string) error
}

// SMTPMailer is the default Mailer, delivering over a plain SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
}

// NewSMTPMailer builds an SMTPMailer. username/password may be empty for a
// relay that does not require authentication.
func NewSMTPMailer(addr, from, username, password, host string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{Addr: addr, From: from, Auth: auth}
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", to, subject, body)
	return smtp.SendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(msg))
}

func (m *SMTPMailer) SendValidationCode(ctx context.Context, toEmail, login, code string) error {
	return m.send(toEmail, "Confirm your account", fmt.Sprintf("Hello %s,\n\nYour validation code is %s.", login, code))
}

func (m *SMTPMailer) SendResetCode(ctx context.Context, toEmail, login, code string) error {
	return m.send(toEmail, "Reset your password", fmt.Sprintf("Hello %s,\n\nYour reset code is %s.", login, code))
}

func (m *SMTPMailer) SendUnfamiliarConnexion(ctx context.Context, toEmail, login, ip, userAgent string) error {
	return m.send(toEmail, "New sign-in to your account", fmt.Sprintf(
		"Hello %s,\n\nWe noticed a sign-in from a new location.\nIP: %s\nDevice: %s\n\nIf this wasn't you, reset your password immediately.",
		login, ip, userAgent,
	))
}
