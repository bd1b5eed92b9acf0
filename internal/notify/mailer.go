package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/bellefleur/bellefleur-backend/internal/orders"
)

const senderName = "Bellefleur"

// Mailer sends order emails through SendGrid.
type Mailer struct {
	apiKey     string
	from       string
	adminEmail string
}

// NewMailer returns a Mailer. adminEmail receives the back-office copies.
func NewMailer(apiKey, from, adminEmail string) *Mailer {
	return &Mailer{apiKey: apiKey, from: from, adminEmail: adminEmail}
}

// SendOrderConfirmation mails the customer their paid-order recap.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, o *orders.Order) bool {
	subject := fmt.Sprintf("Confirmation de votre commande %s", o.OrderNumber)
	body := confirmationBody(o)
	if err := m.send(o.Customer.Email, subject, body); err != nil {
		log.Printf("[notify] order confirmation failed order=%s err=%v", o.OrderID, err)
		return false
	}
	return true
}

// SendNewOrderNotification mails the shop about a new paid order.
func (m *Mailer) SendNewOrderNotification(ctx context.Context, o *orders.Order) bool {
	subject := fmt.Sprintf("Nouvelle commande %s — %.2f €", o.OrderNumber, o.TotalAmount)
	body := newOrderBody(o)
	if err := m.send(m.adminEmail, subject, body); err != nil {
		log.Printf("[notify] admin notification failed order=%s err=%v", o.OrderID, err)
		return false
	}
	return true
}

// SendOrderStatusEmail mails the customer about a status change.
func (m *Mailer) SendOrderStatusEmail(ctx context.Context, o *orders.Order, newStatus, note string) bool {
	subject := fmt.Sprintf("Commande %s : %s", o.OrderNumber, orders.StatusLabel(newStatus))
	body := statusBody(o, newStatus, note)
	if err := m.send(o.Customer.Email, subject, body); err != nil {
		log.Printf("[notify] status email failed order=%s status=%s err=%v", o.OrderID, newStatus, err)
		return false
	}
	return true
}

func (m *Mailer) send(to, subject, body string) error {
	if m.apiKey == "" {
		return fmt.Errorf("sendgrid api key is empty")
	}
	if to == "" {
		return fmt.Errorf("recipient address is empty")
	}

	fromEmail := mail.NewEmail(senderName, m.from)
	toEmail := mail.NewEmail("", to)
	htmlContent := fmt.Sprintf("<pre>%s</pre>", body)
	message := mail.NewSingleEmail(fromEmail, subject, toEmail, body, htmlContent)

	client := sendgrid.NewSendClient(m.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", response.StatusCode, response.Body)
	}
	log.Printf("[notify] mail sent status=%d to=%s subject=%q", response.StatusCode, to, subject)
	return nil
}

func confirmationBody(o *orders.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bonjour %s,\n\n", o.Customer.FirstName)
	fmt.Fprintf(&b, "Merci pour votre commande %s. Votre paiement a bien été reçu.\n\n", o.OrderNumber)
	writeItems(&b, o)
	fmt.Fprintf(&b, "\nTotal : %.2f €\n", o.TotalAmount)
	if o.Delivery.Date != "" {
		fmt.Fprintf(&b, "Livraison prévue le %s\n", o.Delivery.Date)
	}
	fmt.Fprintf(&b, "\nÀ bientôt,\nL'équipe %s\n", senderName)
	return b.String()
}

func newOrderBody(o *orders.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commande %s payée (%.2f €)\n\n", o.OrderNumber, o.TotalAmount)
	fmt.Fprintf(&b, "Client : %s %s <%s>\n", o.Customer.FirstName, o.Customer.LastName, o.Customer.Email)
	fmt.Fprintf(&b, "Livraison : %s, %s %s\n\n", o.Delivery.Address, o.Delivery.PostalCode, o.Delivery.City)
	writeItems(&b, o)
	if o.Delivery.Message != "" {
		fmt.Fprintf(&b, "\nMessage : %s\n", o.Delivery.Message)
	}
	return b.String()
}

func statusBody(o *orders.Order, newStatus, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bonjour %s,\n\n", o.Customer.FirstName)
	fmt.Fprintf(&b, "Votre commande %s est maintenant : %s.\n", o.OrderNumber, orders.StatusLabel(newStatus))
	if note != "" && note != orders.StatusLabel(newStatus) {
		fmt.Fprintf(&b, "\n%s\n", note)
	}
	fmt.Fprintf(&b, "\nÀ bientôt,\nL'équipe %s\n", senderName)
	return b.String()
}

func writeItems(b *strings.Builder, o *orders.Order) {
	for _, it := range o.Items {
		name := it.Name
		if it.VariantName != "" {
			name = fmt.Sprintf("%s (%s)", name, it.VariantName)
		}
		fmt.Fprintf(b, "  %d × %s — %.2f €\n", it.Quantity, name, it.UnitPrice*float64(it.Quantity))
	}
}
