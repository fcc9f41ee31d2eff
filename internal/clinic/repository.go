package clinic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the services.
//
// WithTx runs fn against a transaction-scoped repository: commit if fn
// returns nil, rollback otherwise (including on panic). State-transition
// operations that read-then-write slot or appointment occupancy must run
// inside WithTx.
type Repository interface {
	WithTx(ctx context.Context, fn func(Repository) error) error

	// Slots
	CreateSlot(ctx context.Context, s *TimeSlot) error
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// GetSlotForUpdate row-locks the slot for the duration of the enclosing
	// transaction.
	GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// RetireSlot fails with ErrSlotNotFound if the slot is absent or already
	// retired.
	RetireSlot(ctx context.Context, id uuid.UUID) error
	ListActiveSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetLiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) error
	SetAppointmentState(ctx context.Context, id uuid.UUID, from, to AppointmentState) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	ListLiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID) ([]AppointmentDetail, error)
	ListPaidAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error)
	CountLiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID) (int, error)
	// LiveSlotIDs returns the slots in range held by a pending or paid
	// appointment of the doctor.
	LiveSlotIDs(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[uuid.UUID]struct{}, error)
	// CancelledSlotIDs returns the slots in range whose last archived
	// appointment was cancelled, used by the availability margin rule.
	CancelledSlotIDs(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[uuid.UUID]struct{}, error)

	// Payments
	// CreatePayment fails with ErrPaymentExists if the appointment already
	// has one.
	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	UpdateReceiptPreference(ctx context.Context, id uuid.UUID, rt ReceiptType, taxID *string) error
	MarkPaymentPaid(ctx context.Context, id uuid.UUID, method string, paidAt time.Time) error
	DeletePaymentsForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	CountPendingPaymentsByClient(ctx context.Context, clientID uuid.UUID) (int, error)

	// History
	InsertHistoricalAppointment(ctx context.Context, h *HistoricalAppointment) error
	InsertHistoricalPayment(ctx context.Context, h *HistoricalPayment) error
	ListHistoryByClient(ctx context.Context, clientID uuid.UUID, outcome *Outcome) ([]HistoricalDetail, error)
	ListHistoryByDoctor(ctx context.Context, doctorID uuid.UUID, outcome *Outcome) ([]HistoricalDetail, error)

	// Sweeper: live payment_pending appointments whose pending payment was
	// generated at or before cutoff.
	FindExpiredPending(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	// Notification data for appointment emails.
	GetBookingNotification(ctx context.Context, appointmentID uuid.UUID) (*NotificationData, error)
}
