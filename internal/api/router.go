package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Slots       SlotService
	Bookings    BookingService
	Payments    PaymentService
	Sweeper     SweepRunner
	SweepSecret string
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
	Log         zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot registry
	r.Post("/slots", createSlotHandler(cfg.Slots))
	r.Delete("/slots/{id}", retireSlotHandler(cfg.Slots))

	// Doctor views
	r.Get("/doctors/{id}/availability", doctorAvailabilityHandler(cfg.Slots))
	r.Get("/doctors/{id}/schedule/week", doctorWeekScheduleHandler(cfg.Slots))
	r.Get("/doctors/{id}/slots", doctorSlotsHandler(cfg.Slots))
	r.Get("/doctors/{id}/appointments", doctorAppointmentsHandler(cfg.Bookings))
	r.Get("/doctors/{id}/appointments/history", doctorHistoryHandler(cfg.Bookings))

	// Appointments
	r.Post("/appointments", bookAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/outcome", appointmentOutcomeHandler(cfg.Bookings))

	// Client views
	r.Get("/clients/{id}/appointments", clientAppointmentsHandler(cfg.Bookings))
	r.Get("/clients/{id}/appointments/count", clientAppointmentCountHandler(cfg.Bookings))
	r.Get("/clients/{id}/appointments/history", clientHistoryHandler(cfg.Bookings))
	r.Get("/clients/{id}/payments/count", clientPendingPaymentCountHandler(cfg.Payments))

	// Payments
	r.Get("/payments/{id}", getPaymentHandler(cfg.Payments))
	r.Put("/payments/{id}/receipt", receiptPreferenceHandler(cfg.Payments))
	r.Post("/payments/webhook", paymentWebhookHandler(cfg.Payments))

	// Scheduled tasks
	r.Post("/tasks/expired-appointments", sweepHandler(cfg.Sweeper, cfg.SweepSecret))

	return r
}
