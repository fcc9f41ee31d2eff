package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cismedic/clinic-booking/internal/clinic"
)

// SlotService is the slot-registry surface the handlers need.
type SlotService interface {
	CreateSlot(ctx context.Context, doctorID uuid.UUID, date, startTime string, price float64) (*clinic.TimeSlot, error)
	RetireSlot(ctx context.Context, slotID uuid.UUID) error
	ListAvailability(ctx context.Context, doctorID uuid.UUID, date string) ([]clinic.TimeSlot, error)
	WeekSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*clinic.WeekSchedule, error)
	DoctorSlots(ctx context.Context, doctorID uuid.UUID) ([]clinic.SlotView, error)
}

func createSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		slot, err := svc.CreateSlot(r.Context(), doctorID, req.Date, req.StartTime, req.Price)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func retireSlotHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.RetireSlot(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func doctorAvailabilityHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		slots, err := svc.ListAvailability(r.Context(), doctorID, r.URL.Query().Get("date"))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func doctorWeekScheduleHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		week, err := svc.WeekSchedule(r.Context(), doctorID, r.URL.Query().Get("date"))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := WeekScheduleResponse{
			WeekStart: week.WeekStart.Format("2006-01-02"),
			WeekEnd:   week.WeekEnd.Format("2006-01-02"),
			Slots:     make([]SlotResponse, 0, len(week.Slots)),
		}
		for _, s := range week.Slots {
			resp.Slots = append(resp.Slots, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func doctorSlotsHandler(svc SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		views, err := svc.DoctorSlots(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(views))
		for _, v := range views {
			sr := toSlotResponse(v.TimeSlot)
			sr.Occupancy = v.Occupancy
			resp = append(resp, sr)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
