// Package notify sends transaction notification mail to account
// holders. Delivery is best effort: a failed send is logged and never
// fails the ledger operation that triggered it.
package notify

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"bankledger/internal/config"
	"bankledger/internal/models"
)

// Mailer handles sending notification emails via SMTP
type Mailer struct {
	cfg *config.Config
	log *logrus.Logger
}

// NewMailer creates a new mailer
func NewMailer(cfg *config.Config, log *logrus.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// Enabled reports whether SMTP is configured. When it is not, every
// send becomes a no-op.
func (m *Mailer) Enabled() bool {
	return m.cfg.SMTPHost != ""
}

// TransactionNotice sends a notification for a completed transaction
func (m *Mailer) TransactionNotice(to, username string, t *models.Transaction, balance decimal.Decimal) error {
	if !m.Enabled() {
		return nil
	}

	e := email.NewEmail()
	e.From = m.cfg.SenderEmail
	e.To = []string{to}

	var body string
	switch t.Type {
	case models.TypeDeposit:
		e.Subject = "Deposit Notification"
		body = fmt.Sprintf(
			"Your account %s has been credited with %s.\n",
			t.AccountNumber, t.Amount.StringFixed(2),
		)
	case models.TypeWithdrawal:
		e.Subject = "Withdrawal Notification"
		body = fmt.Sprintf(
			"An amount of %s has been withdrawn from your account %s.\n",
			t.Amount.Neg().StringFixed(2), t.AccountNumber,
		)
	case models.TypeTransfer:
		e.Subject = "Transfer Notification"
		if t.Amount.Sign() < 0 {
			body = fmt.Sprintf(
				"A transfer of %s has been sent from your account %s.\n",
				t.Amount.Neg().StringFixed(2), t.AccountNumber,
			)
		} else {
			body = fmt.Sprintf(
				"A transfer of %s has arrived on your account %s.\n",
				t.Amount.StringFixed(2), t.AccountNumber,
			)
		}
	}

	text := fmt.Sprintf(
		"Dear %s,\n\n%sTransaction time: %s\nCurrent balance: %s\n\nBest regards,\nBank Ledger",
		username, body, t.CreatedAt.Format("2006-01-02 15:04:05"), balance.StringFixed(2),
	)
	e.Text = []byte(text)

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)
	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		m.log.Errorf("Failed to send %s notification to %s: %v", t.Type, to, err)
		return fmt.Errorf("failed to send notification: %w", err)
	}

	m.log.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
