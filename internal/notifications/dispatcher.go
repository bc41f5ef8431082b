package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/config"
	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/misterfood-backend/pkg/errors"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
	"github.com/angelmondragon/misterfood-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Channel names used in logs and alert counters.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

type DispatcherParams struct {
	Repo         Repository
	Email        EmailSender
	Text         TextSender
	SMSFrom      string
	WhatsAppFrom string
	Location     *time.Location
	Metrics      *metrics.OrderFlowMetrics
	Logger       *logger.Logger
}

// Dispatcher tells a merchant about a paid order on every channel it enabled.
type Dispatcher struct {
	repo         Repository
	email        EmailSender
	text         TextSender
	smsFrom      string
	whatsAppFrom string
	loc          *time.Location
	metrics      *metrics.OrderFlowMetrics
	logg         *logger.Logger
}

// NewDispatcher builds a dispatcher. Email and Text may be nil when the
// matching provider is not configured; those channels are then skipped.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Dispatcher{
		repo:         params.Repo,
		email:        params.Email,
		text:         params.Text,
		smsFrom:      strings.TrimSpace(params.SMSFrom),
		whatsAppFrom: strings.TrimSpace(params.WhatsAppFrom),
		loc:          loc,
		metrics:      params.Metrics,
		logg:         logg,
	}, nil
}

// NewDispatcherFromConfig wires the SendGrid and Twilio channels that have
// credentials.
func NewDispatcherFromConfig(cfg config.NotifyConfig, repo Repository, loc *time.Location, m *metrics.OrderFlowMetrics, logg *logger.Logger) (*Dispatcher, error) {
	params := DispatcherParams{
		Repo:         repo,
		SMSFrom:      cfg.TwilioFrom,
		WhatsAppFrom: cfg.TwilioWhatsAppFrom,
		Location:     loc,
		Metrics:      m,
		Logger:       logg,
	}
	if cfg.SendgridAPIKey != "" {
		sender, err := NewSendGridSender(cfg.SendgridAPIKey, cfg.EmailFrom)
		if err != nil {
			return nil, err
		}
		params.Email = sender
	}
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		sender, err := NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
		if err != nil {
			return nil, err
		}
		params.Text = sender
	}
	return NewDispatcher(params)
}

// NotifyOrderPaid renders the order and sends it on each enabled channel.
// Channels fail independently; their errors are combined. An unknown order is
// a no-op.
func (d *Dispatcher) NotifyOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	ctx = d.logg.WithOrderID(ctx, orderID.String())
	order, err := d.repo.FindOrder(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d.logg.Warn(ctx, "notify.order_not_found")
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	merchant, err := d.repo.FindMerchant(ctx, order.MerchantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d.logg.Warn(d.logg.WithMerchantID(ctx, order.MerchantID.String()), "notify.merchant_not_found")
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}
	ctx = d.logg.WithMerchantID(ctx, merchant.ID.String())

	msg := BuildOrderPaidMessage(order, d.loc)
	var errs error
	for _, ch := range d.channels(merchant) {
		if err := ch.send(ctx, msg); err != nil {
			d.metrics.IncAlert("notify_" + ch.name + "_failed")
			d.logg.Error(d.logg.WithField(ctx, "channel", ch.name), "notify.channel_failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		d.logg.Info(d.logg.WithField(ctx, "channel", ch.name), "notify.sent")
	}
	return errs
}

type channel struct {
	name string
	send func(ctx context.Context, msg Message) error
}

func (d *Dispatcher) channels(m *models.Merchant) []channel {
	var out []channel
	email := deref(m.NotifyEmail)
	phone := deref(m.NotifyPhone)

	if m.NotifyEmailEnabled && email != "" && d.email != nil {
		out = append(out, channel{name: ChannelEmail, send: func(ctx context.Context, msg Message) error {
			return d.email.SendEmail(ctx, email, msg)
		}})
	}
	if m.NotifySMSEnabled && phone != "" && d.text != nil && d.smsFrom != "" {
		out = append(out, channel{name: ChannelSMS, send: func(ctx context.Context, msg Message) error {
			return d.text.SendText(ctx, d.smsFrom, phone, msg.Text)
		}})
	}
	if m.NotifyWhatsAppEnabled && phone != "" && d.text != nil && d.whatsAppFrom != "" {
		out = append(out, channel{name: ChannelWhatsApp, send: func(ctx context.Context, msg Message) error {
			return d.text.SendText(ctx, whatsApp(d.whatsAppFrom), whatsApp(phone), msg.Text)
		}})
	}
	return out
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
