package notification

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridSender delivers plain-text email through the SendGrid v3 API.
type SendGridSender struct {
	apiKey   string
	host     string
	fromName string
	from     string
}

func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	return &SendGridSender{apiKey: apiKey, host: sendGridHost, from: from, fromName: fromName}
}

// WithHost points the sender at another API host (tests, regional endpoints).
func (s *SendGridSender) WithHost(host string) *SendGridSender {
	s.host = host
	return s
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, body string) error {
	m := mail.NewV3MailInit(
		mail.NewEmail(s.fromName, s.from), subject,
		mail.NewEmail("", to),
		mail.NewContent("text/plain", body))

	req := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
