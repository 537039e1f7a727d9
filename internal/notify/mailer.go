package notify

import (
	"fmt"

	"github.com/drvdispatch/mobileshop-auth/internal/config"
	mail "github.com/go-mail/mail"
	"go.uber.org/zap"
)

// Mailer sends account notifications over SMTP. Delivery is fire-and-forget:
// authentication flows never wait on, or fail because of, the mail server.
type Mailer struct {
	dialer *mail.Dialer
	from   string
	logger *zap.Logger
}

// New constructs a Mailer, or nil when SMTP is not configured.
func New(cfg config.SMTPConfig, logger *zap.Logger) *Mailer {
	if cfg.Host == "" {
		logger.Info("smtp not configured, notifications disabled")
		return nil
	}
	return &Mailer{
		dialer: mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

// SendWelcome delivers a welcome message to a newly created account.
func (m *Mailer) SendWelcome(email, name string) {
	if m == nil {
		return
	}
	go func() {
		msg := mail.NewMessage()
		msg.SetHeader("From", m.from)
		msg.SetHeader("To", email)
		msg.SetHeader("Subject", "Welcome to MobileShop")
		greeting := name
		if greeting == "" {
			greeting = email
		}
		msg.SetBody("text/plain", fmt.Sprintf(
			"Hi %s,\n\nYour account is ready. You can sign in from your shop's admin page.\n", greeting))

		if err := m.dialer.DialAndSend(msg); err != nil {
			m.logger.Warn("failed to send welcome mail", zap.String("email", email), zap.Error(err))
		}
	}()
}
