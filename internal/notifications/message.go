package notifications

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/angelmondragon/misterfood-backend/pkg/db/models"
	"github.com/shopspring/decimal"
)

const dateLayout = "02/01/2006 15:04"

// Message is one rendered merchant notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// FormatAmount renders minor units as "12.99 EUR".
func FormatAmount(minor int64, currency string) string {
	return decimal.New(minor, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}

// BuildOrderPaidMessage renders the paid-order notice in the merchant's
// language. Dates are shown in loc.
func BuildOrderPaidMessage(order *models.Order, loc *time.Location) Message {
	if loc == nil {
		loc = time.UTC
	}
	total := FormatAmount(order.AmountTotal, order.Currency)
	created := order.CreatedAt.In(loc).Format(dateLayout)
	shortID := order.ID.String()[:8]

	var text strings.Builder
	fmt.Fprintf(&text, "Paiement confirmé\n\nCommande: %s\nTotal: %s\n\nItems:\n", order.ID, total)
	for _, item := range order.Items {
		fmt.Fprintf(&text, "• %d× %s — %s\n", item.Quantity, item.Name, FormatAmount(item.LineTotal(), order.Currency))
	}
	fmt.Fprintf(&text, "\nStatut: %s\nDate: %s\n", order.Status, created)

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>Paiement confirmé</h2>\n<p><b>Commande:</b> %s<br/>\n<b>Total:</b> %s<br/>\n<b>Statut:</b> %s<br/>\n<b>Date:</b> %s</p>\n<hr/>\n<ul>",
		order.ID, html.EscapeString(total), order.Status, created)
	for _, item := range order.Items {
		fmt.Fprintf(&body, "<li>%d× %s — %s</li>", item.Quantity, html.EscapeString(item.Name), FormatAmount(item.LineTotal(), order.Currency))
	}
	body.WriteString("</ul>\n")

	return Message{
		Subject: fmt.Sprintf("Nouvelle commande #%s — %s", shortID, total),
		Text:    text.String(),
		HTML:    body.String(),
	}
}
