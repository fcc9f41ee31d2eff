package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cismedic/clinic-booking/internal/clinic"
)

// BookingService is the appointment surface the handlers need.
type BookingService interface {
	Book(ctx context.Context, p clinic.BookParams) (*clinic.Appointment, error)
	Cancel(ctx context.Context, appointmentID, clientID uuid.UUID, reason string) error
	UpdateOutcome(ctx context.Context, appointmentID, doctorID uuid.UUID, outcome clinic.Outcome, reason string) error
	ListClientAppointments(ctx context.Context, clientID uuid.UUID) ([]clinic.AppointmentDetail, error)
	CountClientAppointments(ctx context.Context, clientID uuid.UUID) (int, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID) ([]clinic.AppointmentDetail, error)
	ClientHistory(ctx context.Context, clientID uuid.UUID, outcomeFilter string) ([]clinic.HistoricalDetail, error)
	DoctorHistory(ctx context.Context, doctorID uuid.UUID, outcomeFilter string) ([]clinic.HistoricalDetail, error)
}

func bookAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		params := clinic.BookParams{
			ClientID:  clientID,
			DoctorID:  doctorID,
			SlotID:    slotID,
			Specialty: req.Specialty,
		}
		if req.DependentID != nil {
			depID, err := uuid.Parse(*req.DependentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_dependent_id", "dependent_id must be a valid UUID")
				return
			}
			params.DependentID = &depID
		}

		appt, err := svc.Book(r.Context(), params)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		clientID, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "client_id must be a valid UUID")
			return
		}

		if err := svc.Cancel(r.Context(), id, clientID, req.Reason); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func appointmentOutcomeHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req OutcomeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		if err := svc.UpdateOutcome(r.Context(), id, doctorID, clinic.Outcome(req.Outcome), req.Reason); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func clientAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "id must be a valid UUID")
			return
		}

		details, err := svc.ListClientAppointments(r.Context(), clientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detailResponses(details))
	}
}

func clientAppointmentCountHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "id must be a valid UUID")
			return
		}

		n, err := svc.CountClientAppointments(r.Context(), clientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

func doctorAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		details, err := svc.ListDoctorAppointments(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detailResponses(details))
	}
}

func clientHistoryHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_id", "id must be a valid UUID")
			return
		}

		history, err := svc.ClientHistory(r.Context(), clientID, r.URL.Query().Get("outcome"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyResponses(history))
	}
}

func doctorHistoryHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		history, err := svc.DoctorHistory(r.Context(), doctorID, r.URL.Query().Get("outcome"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyResponses(history))
	}
}

func detailResponses(details []clinic.AppointmentDetail) []AppointmentDetailResponse {
	resp := make([]AppointmentDetailResponse, 0, len(details))
	for _, d := range details {
		resp = append(resp, toDetailResponse(d))
	}
	return resp
}

func historyResponses(history []clinic.HistoricalDetail) []HistoryResponse {
	resp := make([]HistoryResponse, 0, len(history))
	for _, h := range history {
		resp = append(resp, toHistoryResponse(h))
	}
	return resp
}
