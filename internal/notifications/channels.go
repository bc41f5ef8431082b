package notifications

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsAppPrefix = "whatsapp:"

// EmailSender delivers a rendered message to one address.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, msg Message) error
}

// TextSender delivers a plain text body over SMS or WhatsApp.
type TextSender interface {
	SendText(ctx context.Context, from, to, body string) error
}

// SendGridSender sends email through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	from   *mail.Email
}

func NewSendGridSender(apiKey, from string) (*SendGridSender, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sendgrid api key required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sender address required")
	}
	return &SendGridSender{apiKey: apiKey, from: mail.NewEmail("", from)}, nil
}

func (s *SendGridSender) SendEmail(ctx context.Context, to string, msg Message) error {
	email := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail("", to), msg.Text, msg.HTML)
	// the client keeps the request body on itself, so one per send
	resp, err := sendgrid.NewSendClient(s.apiKey).SendWithContext(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "send email")
	}
	if resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeGateway, "send email").
			WithDetails(map[string]any{"provider": "sendgrid", "status": resp.StatusCode, "body": resp.Body})
	}
	return nil
}

// TwilioSender sends SMS and WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
}

func NewTwilioSender(accountSID, authToken string) (*TwilioSender, error) {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "twilio credentials required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client}, nil
}

func (s *TwilioSender) SendText(ctx context.Context, from, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetBody(body)
	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("send message to %s", maskPhone(to)))
	}
	return nil
}

func whatsApp(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, whatsAppPrefix) {
		return number
	}
	return whatsAppPrefix + number
}

// maskPhone keeps the last four digits for logs.
func maskPhone(number string) string {
	number = strings.TrimPrefix(strings.TrimSpace(number), whatsAppPrefix)
	if len(number) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
