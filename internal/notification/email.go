// File: internal/notification/email.go
package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/pkg/utils"
)

// EmailSender delivers alerts over SMTP. The rule target is the recipient
// address.
type EmailSender struct {
	config *EmailConfig
	auth   smtp.Auth
	logger *logrus.Entry
}

// EmailConfig holds SMTP settings
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// NewEmailSender creates a new email sender
func NewEmailSender(config *EmailConfig) *EmailSender {
	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.SMTPHost)
	}

	return &EmailSender{
		config: config,
		auth:   auth,
		logger: utils.Component("email_sender"),
	}
}

// Channel returns the channel name
func (es *EmailSender) Channel() string {
	return "email"
}

// Send delivers the alert to the target address
func (es *EmailSender) Send(ctx context.Context, target string, alert *Alert) (string, error) {
	if !isValidEmail(target) {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Invalid email address", target)
	}

	message := es.buildMessage(target, alert)
	addr := fmt.Sprintf("%s:%d", es.config.SMTPHost, es.config.SMTPPort)

	if err := smtp.SendMail(addr, es.auth, es.config.FromEmail, []string{target}, []byte(message)); err != nil {
		return "", utils.NewAppError(utils.ErrCodeExternal, "Failed to send email", err.Error())
	}

	es.logger.WithFields(logrus.Fields{
		"to":   target,
		"rule": alert.RuleName,
	}).Debug("Email delivered")

	return "accepted by " + es.config.SMTPHost, nil
}

func (es *EmailSender) buildMessage(to string, alert *Alert) string {
	var message strings.Builder

	message.WriteString(fmt.Sprintf("From: %s <%s>\r\n", es.config.FromName, es.config.FromEmail))
	message.WriteString(fmt.Sprintf("To: %s\r\n", to))
	message.WriteString(fmt.Sprintf("Subject: [SoroScan] %s\r\n", alert.RuleName))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	message.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	message.WriteString("\r\n")

	message.WriteString("<html><body>")
	message.WriteString(fmt.Sprintf("<h2>%s</h2>", alert.RuleName))
	message.WriteString("<table border='1' cellpadding='5' cellspacing='0'>")
	message.WriteString(fmt.Sprintf("<tr><td><strong>Contract</strong></td><td>%s</td></tr>", alert.ContractID))
	message.WriteString(fmt.Sprintf("<tr><td><strong>Event Type</strong></td><td>%s</td></tr>", alert.EventType))
	message.WriteString(fmt.Sprintf("<tr><td><strong>Ledger</strong></td><td>%d</td></tr>", alert.Ledger))
	message.WriteString(fmt.Sprintf("<tr><td><strong>Transaction</strong></td><td>%s</td></tr>", alert.TxHash))
	for key, value := range alert.Payload {
		message.WriteString(fmt.Sprintf("<tr><td><strong>%s</strong></td><td>%v</td></tr>", key, value))
	}
	message.WriteString("</table>")
	message.WriteString(fmt.Sprintf("<p><small>Sent at: %s</small></p>", time.Now().Format(time.RFC3339)))
	message.WriteString("</body></html>")

	return message.String()
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := parts[0], parts[1]
	if len(local) == 0 || len(local) > 64 || len(domain) == 0 || len(domain) > 253 {
		return false
	}
	return true
}
