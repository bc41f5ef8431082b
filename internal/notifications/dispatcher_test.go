package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/angelmondragon/misterfood-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeRepository struct {
	orders    map[uuid.UUID]*models.Order
	merchants map[uuid.UUID]*models.Merchant
	err       error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	if order, ok := f.orders[id]; ok {
		return order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindMerchant(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	if m, ok := f.merchants[id]; ok {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type sentEmail struct {
	to  string
	msg Message
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendEmail(ctx context.Context, to string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{to: to, msg: msg})
	return f.err
}

type sentText struct {
	from, to, body string
}

type fakeText struct {
	sent []sentText
	errs map[string]error
}

func (f *fakeText) SendText(ctx context.Context, from, to, body string) error {
	f.sent = append(f.sent, sentText{from: from, to: to, body: body})
	return f.errs[to]
}

func strPtr(v string) *string { return &v }

func paidFixture() (*fakeRepository, *models.Order, *models.Merchant) {
	merchant := &models.Merchant{
		ID:                    uuid.New(),
		Name:                  "Misterfood",
		NotifyEmailEnabled:    true,
		NotifyEmail:           strPtr("chef@misterfood.fr"),
		NotifySMSEnabled:      true,
		NotifyWhatsAppEnabled: true,
		NotifyPhone:           strPtr("+33600000000"),
	}
	order := &models.Order{
		ID:          uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427"),
		MerchantID:  merchant.ID,
		Currency:    "eur",
		AmountTotal: 2199,
		Status:      enums.OrderStatusPaid,
		CreatedAt:   time.Date(2025, 3, 5, 11, 30, 0, 0, time.UTC),
		Items: []models.OrderItem{
			{Name: "Menu Tacos", UnitAmount: 1299, Quantity: 1},
			{Name: "Churros", UnitAmount: 450, Quantity: 2},
		},
	}
	repo := &fakeRepository{
		orders:    map[uuid.UUID]*models.Order{order.ID: order},
		merchants: map[uuid.UUID]*models.Merchant{merchant.ID: merchant},
	}
	return repo, order, merchant
}

func TestBuildOrderPaidMessage(t *testing.T) {
	_, order, _ := paidFixture()
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	msg := BuildOrderPaidMessage(order, paris)
	if msg.Subject != "Nouvelle commande #1b4e28ba — 21.99 EUR" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"• 1× Menu Tacos — 12.99 EUR", "• 2× Churros — 9.00 EUR", "Statut: PAID", "Date: 05/03/2025 12:30"} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("text body missing %q:\n%s", want, msg.Text)
		}
	}
	if !strings.Contains(msg.HTML, "<li>2× Churros — 9.00 EUR</li>") {
		t.Fatalf("unexpected html body %s", msg.HTML)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{0: "0.00 EUR", 5: "0.05 EUR", 1299: "12.99 EUR", 100000: "1000.00 EUR"}
	for minor, want := range cases {
		if got := FormatAmount(minor, "eur"); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", minor, got, want)
		}
	}
}

func TestNotifyOrderPaidSendsOnEveryEnabledChannel(t *testing.T) {
	repo, order, _ := paidFixture()
	email := &fakeEmail{}
	text := &fakeText{}
	d, err := NewDispatcher(DispatcherParams{
		Repo:         repo,
		Email:        email,
		Text:         text,
		SMSFrom:      "+33100000000",
		WhatsAppFrom: "+14155238886",
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	if err := d.NotifyOrderPaid(context.Background(), order.ID); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(email.sent) != 1 || email.sent[0].to != "chef@misterfood.fr" {
		t.Fatalf("unexpected emails %+v", email.sent)
	}
	if len(text.sent) != 2 {
		t.Fatalf("expected sms and whatsapp, got %+v", text.sent)
	}
	if text.sent[0].from != "+33100000000" || text.sent[0].to != "+33600000000" {
		t.Fatalf("unexpected sms %+v", text.sent[0])
	}
	if text.sent[1].from != "whatsapp:+14155238886" || text.sent[1].to != "whatsapp:+33600000000" {
		t.Fatalf("unexpected whatsapp %+v", text.sent[1])
	}
}

func TestNotifyOrderPaidIsolatesChannelFailures(t *testing.T) {
	repo, order, _ := paidFixture()
	email := &fakeEmail{err: errors.New("sendgrid 500")}
	text := &fakeText{errs: map[string]error{"+33600000000": errors.New("twilio 21211")}}
	d, err := NewDispatcher(DispatcherParams{
		Repo:         repo,
		Email:        email,
		Text:         text,
		SMSFrom:      "+33100000000",
		WhatsAppFrom: "+14155238886",
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	err = d.NotifyOrderPaid(context.Background(), order.ID)
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if !strings.Contains(err.Error(), "email: sendgrid 500") || !strings.Contains(err.Error(), "sms: twilio 21211") {
		t.Fatalf("unexpected error %v", err)
	}
	if len(text.sent) != 2 {
		t.Fatalf("whatsapp must still be attempted, got %+v", text.sent)
	}
}

func TestNotifyOrderPaidSkipsUnconfiguredChannels(t *testing.T) {
	repo, order, merchant := paidFixture()
	merchant.NotifyEmailEnabled = false
	text := &fakeText{}
	d, err := NewDispatcher(DispatcherParams{Repo: repo, Text: text, SMSFrom: "+33100000000"})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	if err := d.NotifyOrderPaid(context.Background(), order.ID); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(text.sent) != 1 || strings.HasPrefix(text.sent[0].to, "whatsapp:") {
		t.Fatalf("expected sms only, got %+v", text.sent)
	}
}

func TestNotifyOrderPaidUnknownOrderIsNoop(t *testing.T) {
	repo, _, _ := paidFixture()
	email := &fakeEmail{}
	d, err := NewDispatcher(DispatcherParams{Repo: repo, Email: email})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if err := d.NotifyOrderPaid(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("no email expected")
	}
}

func TestNotifyOrderPaidSurfacesRepositoryErrors(t *testing.T) {
	repo, order, _ := paidFixture()
	repo.err = errors.New("connection reset")
	d, err := NewDispatcher(DispatcherParams{Repo: repo})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if err := d.NotifyOrderPaid(context.Background(), order.ID); err == nil {
		t.Fatalf("expected repository error")
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("whatsapp:+33612345678"); got != "********5678" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := maskPhone("12"); got != "****" {
		t.Fatalf("unexpected mask %q", got)
	}
}
