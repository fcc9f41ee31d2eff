// Package notify is the Notification Service boundary: templated email
// dispatch for the booking flow. Callers treat failures as non-fatal; the
// services log and move on.
package notify

import "context"

// Template names the emails the booking flow sends.
type Template string

const (
	BookingConfirmed        Template = "booking-confirmed"
	PaymentDue              Template = "payment-due"
	PaymentCompletedRetail  Template = "payment-completed-retail-receipt"
	PaymentCompletedInvoice Template = "payment-completed-invoice"
	AppointmentCompleted    Template = "appointment-completed"
	AppointmentCancelled    Template = "appointment-cancelled"
	AppointmentExpired      Template = "appointment-expired"
)

// Data is the structured payload rendered into a template. Fields unused by
// a given template are ignored.
type Data struct {
	AppointmentID string
	ClientName    string
	PatientName   string
	DoctorName    string
	Specialty     string
	Date          string
	Time          string
	Amount        float64
	Reason        string
	TaxID         string
	// PaymentWindow is the human-readable payment deadline, e.g. "10 minutes".
	PaymentWindow string
}

type Attachment struct {
	Filename string
	Content  []byte
}

// Notifier dispatches one templated email. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, tmpl Template, recipient string, data Data, attachments ...Attachment) error
}
