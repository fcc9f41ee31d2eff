package clinic

import (
	"time"

	"github.com/google/uuid"
)

// SlotState is the lifecycle state of a doctor's time slot. Slots are never
// hard-deleted; retiring keeps historical appointments pointing at a real row.
type SlotState string

const (
	SlotActive  SlotState = "active"
	SlotRetired SlotState = "retired"
)

// AppointmentState covers live appointments only. Completed and cancelled
// appointments do not exist in the live table; they are archived with an
// Outcome instead.
type AppointmentState string

const (
	StatusPaymentPending AppointmentState = "payment_pending"
	StatusPaid           AppointmentState = "paid"
)

// Outcome is the terminal state recorded when an appointment is archived.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

type PaymentState string

const (
	PaymentPending PaymentState = "pending"
	PaymentPaid    PaymentState = "paid"
)

// ReceiptType selects the document generated when a payment settles.
type ReceiptType string

const (
	ReceiptRetail  ReceiptType = "retail_receipt"
	ReceiptInvoice ReceiptType = "invoice"
)

type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartAt   time.Time
	Price     float64
	State     SlotState
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	ClientID    uuid.UUID
	DependentID *uuid.UUID
	DoctorID    uuid.UUID
	SlotID      uuid.UUID
	Specialty   string
	State       AppointmentState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Amount        float64
	State         PaymentState
	CreatedAt     time.Time // generation time, starts the payment window
	PaidAt        *time.Time
	Method        *string
	ReceiptType   *ReceiptType
	TaxID         *string
}

// HistoricalAppointment is the immutable archive copy of a terminal
// appointment.
type HistoricalAppointment struct {
	AppointmentID uuid.UUID
	ClientID      uuid.UUID
	DependentID   *uuid.UUID
	DoctorID      uuid.UUID
	SlotID        uuid.UUID
	Specialty     string
	Outcome       Outcome
	Reason        *string
	ArchivedAt    time.Time
}

type HistoricalPayment struct {
	PaymentID     uuid.UUID
	AppointmentID uuid.UUID
	Amount        float64
	State         PaymentState
	CreatedAt     time.Time
	PaidAt        *time.Time
	Method        *string
	ReceiptType   *ReceiptType
	TaxID         *string
	MovedAt       time.Time
}

// AppointmentDetail is an appointment hydrated with the joined data the
// listing endpoints return.
type AppointmentDetail struct {
	Appointment
	ClientName  string
	PatientName string // dependent if booked for one, otherwise the client
	DoctorName  string
	StartAt     time.Time
	Price       float64
	PaymentID   *uuid.UUID
}

// HistoricalDetail mirrors AppointmentDetail for archived appointments.
type HistoricalDetail struct {
	HistoricalAppointment
	ClientName  string
	PatientName string
	DoctorName  string
	StartAt     time.Time
	Price       float64
	PaymentID   *uuid.UUID
}

// NotificationData carries the joined fields every appointment email needs.
type NotificationData struct {
	AppointmentID uuid.UUID
	ClientName    string
	ClientEmail   string
	PatientName   string
	DoctorName    string
	Specialty     string
	StartAt       time.Time
	Price         float64
}
