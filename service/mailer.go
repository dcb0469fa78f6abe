package service

import (
	"errors"
	"fmt"
	"log"

	gomail "gopkg.in/gomail.v2"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
)

var (
	// ErrMailTransport means the SMTP server could not be reached;
	// distinct from a per-message send failure.
	ErrMailTransport = errors.New("mail transport unavailable")
	ErrMailSend      = errors.New("mail send failed")
)

// Mail is the outbound-mail surface the pipeline and offer flow use.
type Mail interface {
	Configured() bool
	Send(to, subject, body string) error
}

// Mailer sends through SMTP. An unconfigured mailer logs and no-ops:
// payment reconciliation never depends on email delivery.
type Mailer struct {
	host string
	port int
	user string
	pass string
	from string
}

func NewMailer(host string, port int, user, pass, from string) *Mailer {
	return &Mailer{host: host, port: port, user: user, pass: pass, from: from}
}

func (m *Mailer) Configured() bool { return m.host != "" }

func (m *Mailer) Send(to, subject, body string) error {
	if !m.Configured() {
		log.Printf("⚠ mail transport unconfigured, dropping %q to %s", subject, to)
		return nil
	}

	d := gomail.NewDialer(m.host, m.port, m.user, m.pass)
	sender, err := d.Dial()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMailTransport, err)
	}
	defer sender.Close()

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := gomail.Send(sender, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMailSend, err)
	}
	return nil
}

func centsToDollars(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}

// SellerSaleBody renders the per-seller sale notice.
func SellerSaleBody(orderID string, g model.SellerGroup, ship model.ShippingDetails) string {
	body := fmt.Sprintf("You made a sale! Order %s\n\n", orderID)
	for _, it := range g.Items {
		body += fmt.Sprintf("  %s x%d - %s\n", it.Title, it.Quantity, centsToDollars(it.LineTotal()))
	}
	body += fmt.Sprintf("\nSubtotal: %s\nShipping: %s\n", centsToDollars(g.SubtotalCents), centsToDollars(g.ShippingCents))
	body += fmt.Sprintf("\nShip to:\n%s\n%s\n%s, %s %s\n%s\n",
		ship.Name, ship.Street, ship.City, ship.State, ship.Zip, ship.Country)
	return body
}

// BuyerConfirmationBody renders the order confirmation.
func BuyerConfirmationBody(orderID string, items []model.CartLineItem, totalCents int64) string {
	body := fmt.Sprintf("Thanks for your order %s!\n\n", orderID)
	for _, it := range items {
		body += fmt.Sprintf("  %s x%d - %s\n", it.Title, it.Quantity, centsToDollars(it.LineTotal()))
	}
	body += fmt.Sprintf("\nTotal: %s\n", centsToDollars(totalCents))
	return body
}
