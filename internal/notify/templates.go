package notify

import (
	"fmt"
	"strings"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/shopspring/decimal"
)

// Kind selects a message family.
type Kind string

const (
	KindPaymentSent       Kind = "payment_sent"
	KindPaymentReceived   Kind = "payment_received"
	KindRecurringReminder Kind = "recurring_reminder"
	KindPaymentFailed     Kind = "payment_failed"
)

// TemplateContext is the data a message is rendered from. Optional fields
// are left zero.
type TemplateContext struct {
	Amount      decimal.Decimal
	Currency    string
	Recipient   string
	Reference   string
	Savings     *decimal.Decimal
	Date        string
	ExplorerURL string
}

type phrases struct {
	sent             string // amount, currency, recipient
	defaultRecipient string
	saved            string // savings
	received         string // amount, currency, short reference
	reminder         string // amount, currency, recipient, date
	failed           string // amount, currency
	subject          map[Kind]string
}

var catalog = map[domain.Language]phrases{
	domain.LanguageEnglish: {
		sent:             "✅ Payment sent! %s %s to %s.",
		defaultRecipient: "recipient",
		saved:            " You saved $%s in fees!",
		received:         "💰 You received %s %s! Check your wallet. Tx: %s...",
		reminder:         "⏰ Reminder: Recurring payment of %s %s to %s scheduled for %s. Ensure sufficient balance!",
		failed:           "❌ Payment of %s %s failed. Please check your balance and try again.",
		subject: map[Kind]string{
			KindPaymentSent:       "Payment sent",
			KindPaymentReceived:   "Payment received",
			KindRecurringReminder: "Upcoming recurring payment",
			KindPaymentFailed:     "Payment failed",
		},
	},
	domain.LanguageSpanish: {
		sent:             "✅ ¡Pago enviado! %s %s a %s.",
		defaultRecipient: "destinatario",
		saved:            " ¡Ahorraste $%s en comisiones!",
		received:         "💰 ¡Recibiste %s %s! Revisa tu billetera. Tx: %s...",
		reminder:         "⏰ Recordatorio: Pago recurrente de %s %s a %s programado para %s. ¡Asegura saldo suficiente!",
		failed:           "❌ El pago de %s %s falló. Por favor verifica tu saldo e intenta nuevamente.",
		subject: map[Kind]string{
			KindPaymentSent:       "Pago enviado",
			KindPaymentReceived:   "Pago recibido",
			KindRecurringReminder: "Próximo pago recurrente",
			KindPaymentFailed:     "Pago fallido",
		},
	},
	domain.LanguagePortuguese: {
		sent:             "✅ Pagamento enviado! %s %s para %s.",
		defaultRecipient: "destinatário",
		saved:            " Você economizou $%s em taxas!",
		received:         "💰 Você recebeu %s %s! Confira sua carteira. Tx: %s...",
		reminder:         "⏰ Lembrete: Pagamento recorrente de %s %s para %s agendado para %s. Garanta saldo suficiente!",
		failed:           "❌ O pagamento de %s %s falhou. Por favor verifique seu saldo e tente novamente.",
		subject: map[Kind]string{
			KindPaymentSent:       "Pagamento enviado",
			KindPaymentReceived:   "Pagamento recebido",
			KindRecurringReminder: "Próximo pagamento recorrente",
			KindPaymentFailed:     "Pagamento falhou",
		},
	},
	domain.LanguageFrench: {
		sent:             "✅ Paiement envoyé! %s %s à %s.",
		defaultRecipient: "destinataire",
		saved:            " Vous avez économisé $%s de frais!",
		received:         "💰 Vous avez reçu %s %s! Vérifiez votre portefeuille. Tx: %s...",
		reminder:         "⏰ Rappel: Paiement récurrent de %s %s à %s prévu pour %s. Assurez un solde suffisant!",
		failed:           "❌ Le paiement de %s %s a échoué. Veuillez vérifier votre solde et réessayer.",
		subject: map[Kind]string{
			KindPaymentSent:       "Paiement envoyé",
			KindPaymentReceived:   "Paiement reçu",
			KindRecurringReminder: "Paiement récurrent à venir",
			KindPaymentFailed:     "Paiement échoué",
		},
	},
}

const shortReferenceLen = 10

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Render builds the message for kind in lang. Unknown languages fall back
// to English.
func Render(kind Kind, lang domain.Language, c TemplateContext) (Message, error) {
	p := catalog[lang.OrDefault()]
	amount := c.Amount.String()

	var body string
	switch kind {
	case KindPaymentSent:
		recipient := c.Recipient
		if recipient == "" {
			recipient = p.defaultRecipient
		}
		var b strings.Builder
		fmt.Fprintf(&b, p.sent, amount, c.Currency, recipient)
		if c.Savings != nil && c.Savings.IsPositive() {
			fmt.Fprintf(&b, p.saved, c.Savings.StringFixed(2))
		}
		tx := c.ExplorerURL
		if tx == "" {
			tx = c.Reference
		}
		if tx != "" {
			b.WriteString(" Tx: " + tx)
		}
		body = b.String()
	case KindPaymentReceived:
		ref := c.Reference
		if len(ref) > shortReferenceLen {
			ref = ref[:shortReferenceLen]
		}
		body = fmt.Sprintf(p.received, amount, c.Currency, ref)
	case KindRecurringReminder:
		body = fmt.Sprintf(p.reminder, amount, c.Currency, c.Recipient, c.Date)
	case KindPaymentFailed:
		body = fmt.Sprintf(p.failed, amount, c.Currency)
	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	return Message{Subject: p.subject[kind], Body: body}, nil
}

// ExplorerURL joins a transaction reference onto the explorer base URL.
// Returns "" when either part is missing.
func ExplorerURL(base, reference string) string {
	if base == "" || reference == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + reference
}
