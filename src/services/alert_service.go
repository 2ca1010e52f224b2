package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/smalcash/backend/src/config"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
)

func NewAlertService() AlertService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Alert service will default to mock.")
		return &MockAlertService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing alert service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.AlertEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or AlertEmail missing). Falling back to MockAlertService.")
			return &MockAlertService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunAlertService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
			alertEmail:  config.Cfg.AlertEmail,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.AlertEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockAlertService.")
			return &MockAlertService{}
		}
		return &SMTPAlertService{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
			AlertEmail:   config.Cfg.AlertEmail,
		}
	default:
		logger.L.Info("Defaulting to MockAlertService.")
		return &MockAlertService{}
	}
}

func alertSubject(sale *models.Sale) string {
	return fmt.Sprintf("SmalCash: sale %d could not be synchronized", sale.LocalID)
}

func alertBody(sale *models.Sale, reason string) string {
	return fmt.Sprintf(`A sale was permanently rejected by the remote store and will not be retried.

Local ID:     %d
UUID:         %s
Register:     %s
Operator:     %s
Gross total:  %.2f
Fee:          %.2f
Recorded at:  %s
Reason:       %s

The sale remains in the local ledger and still counts toward the on-device daily totals.
Review it in the admin view (rejected sales).`,
		sale.LocalID, sale.UUID, sale.RegisterID, sale.Operator,
		sale.GrossTotal, sale.Fee, sale.CreatedAt.Format(time.RFC3339), reason)
}

type MailgunAlertService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
	alertEmail  string
}

func (s *MailgunAlertService) SendSyncFailureAlert(sale *models.Sale, reason string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	message := s.mg.NewMessage(from, alertSubject(sale), alertBody(sale, reason), s.alertEmail)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send sync failure alert via Mailgun", "error", err,
			"localID", sale.LocalID, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Sync failure alert sent via Mailgun", "localID", sale.LocalID, "id", id)
	return nil
}

type SMTPAlertService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
	AlertEmail   string
}

func (s *SMTPAlertService) SendSyncFailureAlert(sale *models.Sale, reason string) error {
	header := map[string]string{
		"From":         s.SenderEmail,
		"To":           s.AlertEmail,
		"Subject":      alertSubject(sale),
		"MIME-version": "1.0",
		"Content-Type": "text/plain; charset=\"UTF-8\"",
	}
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + alertBody(sale, reason)

	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := smtp.SendMail(addr, auth, s.SenderEmail, []string{s.AlertEmail}, []byte(message)); err != nil {
		logger.L.Error("Failed to send sync failure alert via SMTP", "error", err, "localID", sale.LocalID)
		return fmt.Errorf("failed to send sync failure alert via SMTP: %w", err)
	}
	logger.L.Info("Sync failure alert sent via SMTP", "localID", sale.LocalID)
	return nil
}

// MockAlertService logs instead of sending. Used in development and tests.
type MockAlertService struct{}

func (s *MockAlertService) SendSyncFailureAlert(sale *models.Sale, reason string) error {
	logger.L.Info("MOCK ALERT: sale permanently rejected",
		"localID", sale.LocalID, "uuid", sale.UUID, "reason", reason)
	return nil
}
