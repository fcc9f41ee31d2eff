package notify

import (
	"fmt"
	"strings"
)

// Render produces the subject and plain-text body for a template. Layout and
// localization live with the mail frontend; this backend only guarantees the
// data is present.
func Render(tmpl Template, d Data) (subject, body string, err error) {
	switch tmpl {
	case BookingConfirmed:
		subject = "Your appointment is booked"
		body = join(
			greeting(d),
			"Your appointment has been registered and is awaiting payment.",
			appointmentBlock(d),
		)
	case PaymentDue:
		subject = "Payment required for your appointment"
		body = join(
			greeting(d),
			fmt.Sprintf("A payment of %s is pending for your appointment.", amount(d)),
			fmt.Sprintf("If the payment is not completed within %s, the appointment is cancelled automatically.", d.PaymentWindow),
			appointmentBlock(d),
		)
	case PaymentCompletedRetail:
		subject = "Payment received - your receipt"
		body = join(
			greeting(d),
			fmt.Sprintf("We received your payment of %s. Your receipt is attached.", amount(d)),
			appointmentBlock(d),
		)
	case PaymentCompletedInvoice:
		subject = "Payment received - your invoice"
		body = join(
			greeting(d),
			fmt.Sprintf("We received your payment of %s. Your invoice (tax ID %s) is attached.", amount(d), d.TaxID),
			appointmentBlock(d),
		)
	case AppointmentCompleted:
		subject = "Your appointment is completed"
		body = join(
			greeting(d),
			"Your appointment has been marked as completed by the doctor.",
			appointmentBlock(d),
		)
	case AppointmentCancelled:
		subject = "Your appointment was cancelled"
		body = join(
			greeting(d),
			fmt.Sprintf("The appointment has been cancelled. Reason: %s", d.Reason),
			appointmentBlock(d),
		)
	case AppointmentExpired:
		subject = "Your appointment expired"
		body = join(
			greeting(d),
			"The payment window for your appointment elapsed, so the booking was released.",
			appointmentBlock(d),
		)
	default:
		return "", "", fmt.Errorf("unknown template %q", tmpl)
	}
	return subject, body, nil
}

func greeting(d Data) string {
	return fmt.Sprintf("Hello %s,", d.ClientName)
}

func amount(d Data) string {
	return fmt.Sprintf("S/ %.2f", d.Amount)
}

func appointmentBlock(d Data) string {
	return strings.Join([]string{
		fmt.Sprintf("Appointment: %s", d.AppointmentID),
		fmt.Sprintf("Patient:     %s", d.PatientName),
		fmt.Sprintf("Doctor:      %s", d.DoctorName),
		fmt.Sprintf("Specialty:   %s", d.Specialty),
		fmt.Sprintf("Date:        %s", d.Date),
		fmt.Sprintf("Time:        %s", d.Time),
	}, "\n")
}

func join(parts ...string) string {
	return strings.Join(parts, "\n\n")
}
