package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/cismedic/clinic-booking/internal/clinic"
)

type CreateSlotRequest struct {
	DoctorID  string  `json:"doctor_id"`
	Date      string  `json:"date"`       // YYYY-MM-DD
	StartTime string  `json:"start_time"` // HH:MM
	Price     float64 `json:"price"`
}

type BookAppointmentRequest struct {
	ClientID    string  `json:"client_id"`
	DependentID *string `json:"dependent_id,omitempty"`
	DoctorID    string  `json:"doctor_id"`
	SlotID      string  `json:"slot_id"`
	Specialty   string  `json:"specialty"`
}

type CancelAppointmentRequest struct {
	ClientID string `json:"client_id"`
	Reason   string `json:"reason"`
}

type OutcomeRequest struct {
	DoctorID string `json:"doctor_id"`
	Outcome  string `json:"outcome"` // completed or cancelled
	Reason   string `json:"reason,omitempty"`
}

type ReceiptPreferenceRequest struct {
	ReceiptType string `json:"receipt_type"` // retail_receipt or invoice
	TaxID       string `json:"tax_id,omitempty"`
}

// WebhookRequest is the gateway's event envelope. Only the payment ID is
// taken from it; the status is fetched back from the gateway.
type WebhookRequest struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartAt   time.Time `json:"start_at"`
	Price     float64   `json:"price"`
	State     string    `json:"state"`
	Occupancy string    `json:"occupancy,omitempty"`
}

type WeekScheduleResponse struct {
	WeekStart string         `json:"week_start"`
	WeekEnd   string         `json:"week_end"`
	Slots     []SlotResponse `json:"slots"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	DependentID *uuid.UUID `json:"dependent_id,omitempty"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	SlotID      uuid.UUID  `json:"slot_id"`
	Specialty   string     `json:"specialty"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	ClientName  string     `json:"client_name"`
	PatientName string     `json:"patient_name"`
	DoctorName  string     `json:"doctor_name"`
	StartAt     time.Time  `json:"start_at"`
	Price       float64    `json:"price"`
	PaymentID   *uuid.UUID `json:"payment_id,omitempty"`
}

type HistoryResponse struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	ClientName    string     `json:"client_name"`
	PatientName   string     `json:"patient_name"`
	DoctorName    string     `json:"doctor_name"`
	Specialty     string     `json:"specialty"`
	StartAt       time.Time  `json:"start_at"`
	Price         float64    `json:"price"`
	Outcome       string     `json:"outcome"`
	Reason        *string    `json:"reason,omitempty"`
	ArchivedAt    time.Time  `json:"archived_at"`
	PaymentID     *uuid.UUID `json:"payment_id,omitempty"`
}

type PaymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	Amount        float64    `json:"amount"`
	State         string     `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	Method        *string    `json:"method,omitempty"`
	ReceiptType   *string    `json:"receipt_type,omitempty"`
}

type CountResponse struct {
	Count int `json:"count"`
}

func toSlotResponse(s clinic.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:       s.ID,
		DoctorID: s.DoctorID,
		StartAt:  s.StartAt,
		Price:    s.Price,
		State:    string(s.State),
	}
}

func toAppointmentResponse(a *clinic.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		ClientID:    a.ClientID,
		DependentID: a.DependentID,
		DoctorID:    a.DoctorID,
		SlotID:      a.SlotID,
		Specialty:   a.Specialty,
		State:       string(a.State),
		CreatedAt:   a.CreatedAt,
	}
}

func toDetailResponse(d clinic.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		ClientName:          d.ClientName,
		PatientName:         d.PatientName,
		DoctorName:          d.DoctorName,
		StartAt:             d.StartAt,
		Price:               d.Price,
		PaymentID:           d.PaymentID,
	}
}

func toHistoryResponse(h clinic.HistoricalDetail) HistoryResponse {
	return HistoryResponse{
		AppointmentID: h.AppointmentID,
		ClientName:    h.ClientName,
		PatientName:   h.PatientName,
		DoctorName:    h.DoctorName,
		Specialty:     h.Specialty,
		StartAt:       h.StartAt,
		Price:         h.Price,
		Outcome:       string(h.Outcome),
		Reason:        h.Reason,
		ArchivedAt:    h.ArchivedAt,
		PaymentID:     h.PaymentID,
	}
}

func toPaymentResponse(p *clinic.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID,
		AppointmentID: p.AppointmentID,
		Amount:        p.Amount,
		State:         string(p.State),
		CreatedAt:     p.CreatedAt,
		PaidAt:        p.PaidAt,
		Method:        p.Method,
	}
	if p.ReceiptType != nil {
		rt := string(*p.ReceiptType)
		resp.ReceiptType = &rt
	}
	return resp
}
