package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cismedic/clinic-booking/internal/notify"
	redisclient "github.com/cismedic/clinic-booking/internal/redis"
)

// BookingService is the appointment state machine: it reserves slots,
// handles cancellations and doctor-recorded outcomes, and archives terminal
// appointments.
type BookingService struct {
	repo          Repository
	locker        redisclient.Locker
	notifier      notify.Notifier
	paymentWindow time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

func NewBookingService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, paymentWindow time.Duration, log zerolog.Logger) *BookingService {
	return &BookingService{
		repo:          repo,
		locker:        locker,
		notifier:      notifier,
		paymentWindow: paymentWindow,
		log:           log.With().Str("component", "booking").Logger(),
		now:           time.Now,
	}
}

type BookParams struct {
	ClientID    uuid.UUID
	DependentID *uuid.UUID
	DoctorID    uuid.UUID
	SlotID      uuid.UUID
	Specialty   string
}

// Book reserves a slot for a client. The slot must be active and free of any
// live appointment; the check and the insert happen inside one transaction
// under a row lock so two concurrent bookers get exactly one success and one
// conflict. On success the appointment starts in payment_pending with its
// pending payment attached, and the confirmation plus payment-due mails are
// dispatched best-effort.
func (s *BookingService) Book(ctx context.Context, p BookParams) (*Appointment, error) {
	if strings.TrimSpace(p.Specialty) == "" {
		return nil, fmt.Errorf("%w: specialty is required", ErrInvalidArgument)
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, p.SlotID, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(tx Repository) error {
			slot, err := tx.GetSlotForUpdate(lockCtx, p.SlotID)
			if err != nil {
				return err
			}
			if slot.State != SlotActive {
				return ErrSlotUnavailable
			}
			if slot.DoctorID != p.DoctorID {
				return fmt.Errorf("%w: slot does not belong to the doctor", ErrInvalidArgument)
			}

			_, err = tx.GetLiveAppointmentForSlot(lockCtx, p.SlotID)
			if err == nil {
				return ErrSlotTaken
			}
			if !errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("check live appointment: %w", err)
			}

			now := s.now()
			appt := &Appointment{
				ID:          uuid.New(),
				ClientID:    p.ClientID,
				DependentID: p.DependentID,
				DoctorID:    p.DoctorID,
				SlotID:      p.SlotID,
				Specialty:   p.Specialty,
				State:       StatusPaymentPending,
			}
			if err := tx.CreateAppointment(lockCtx, appt); err != nil {
				return err
			}

			pay := &Payment{
				ID:            uuid.New(),
				AppointmentID: appt.ID,
				Amount:        slot.Price,
				State:         PaymentPending,
				CreatedAt:     now,
			}
			if err := tx.CreatePayment(lockCtx, pay); err != nil {
				return err
			}

			created = appt
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.Info().Str("appointment_id", created.ID.String()).Str("slot_id", p.SlotID.String()).
		Str("client_id", p.ClientID.String()).Msg("appointment booked")

	s.sendBookingMail(ctx, created.ID)
	return created, nil
}

// sendBookingMail dispatches the booking-confirmed and payment-due mails.
// Notification failures never roll a booking back.
func (s *BookingService) sendBookingMail(ctx context.Context, appointmentID uuid.UUID) {
	data, err := s.repo.GetBookingNotification(ctx, appointmentID)
	if err != nil {
		s.log.Warn().Err(err).Str("appointment_id", appointmentID.String()).Msg("booking mail data unavailable")
		return
	}

	nd := s.mailData(data)
	for _, tmpl := range []notify.Template{notify.BookingConfirmed, notify.PaymentDue} {
		if err := s.notifier.Send(ctx, tmpl, data.ClientEmail, nd); err != nil {
			s.log.Warn().Err(err).Str("template", string(tmpl)).
				Str("appointment_id", appointmentID.String()).Msg("booking mail failed")
		}
	}
}

// Cancel is the client-initiated cancellation. The appointment is archived
// as cancelled right away; an attached payment is deleted rather than
// archived, since it was never completed.
func (s *BookingService) Cancel(ctx context.Context, appointmentID, clientID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: cancellation reason is required", ErrInvalidArgument)
	}

	var data *NotificationData

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.ClientID != clientID {
			return ErrNotOwner
		}

		data, err = tx.GetBookingNotification(ctx, appt.ID)
		if err != nil {
			return fmt.Errorf("load notification data: %w", err)
		}

		return archiveAppointment(ctx, tx, appt, OutcomeCancelled, &reason, false, s.now())
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("appointment_id", appointmentID.String()).Msg("appointment cancelled by client")

	nd := s.mailData(data)
	nd.Reason = reason
	if err := s.notifier.Send(ctx, notify.AppointmentCancelled, data.ClientEmail, nd); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", appointmentID.String()).Msg("cancellation mail failed")
	}
	return nil
}

// UpdateOutcome records the doctor's terminal verdict. The appointment and
// its payment move to history in one transaction; a completed appointment
// additionally retires the slot, which is never reusable afterwards.
func (s *BookingService) UpdateOutcome(ctx context.Context, appointmentID, doctorID uuid.UUID, outcome Outcome, reason string) error {
	reason = strings.TrimSpace(reason)
	switch outcome {
	case OutcomeCompleted:
	case OutcomeCancelled:
		if reason == "" {
			return fmt.Errorf("%w: cancellation reason is required", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: outcome must be completed or cancelled", ErrInvalidArgument)
	}

	var data *NotificationData

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.DoctorID != doctorID {
			return ErrNotOwner
		}

		data, err = tx.GetBookingNotification(ctx, appt.ID)
		if err != nil {
			return fmt.Errorf("load notification data: %w", err)
		}

		var reasonPtr *string
		if outcome == OutcomeCancelled {
			reasonPtr = &reason
		}
		if err := archiveAppointment(ctx, tx, appt, outcome, reasonPtr, true, s.now()); err != nil {
			return err
		}

		if outcome == OutcomeCompleted {
			if err := tx.RetireSlot(ctx, appt.SlotID); err != nil {
				// A completed appointment always sits on an active slot;
				// anything else is a storage inconsistency, so roll back.
				return fmt.Errorf("retire consumed slot %s: %v", appt.SlotID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("appointment_id", appointmentID.String()).Str("outcome", string(outcome)).
		Msg("appointment outcome recorded")

	tmpl := notify.AppointmentCompleted
	if outcome == OutcomeCancelled {
		tmpl = notify.AppointmentCancelled
	}
	nd := s.mailData(data)
	nd.Reason = reason
	if err := s.notifier.Send(ctx, tmpl, data.ClientEmail, nd); err != nil {
		s.log.Warn().Err(err).Str("appointment_id", appointmentID.String()).Msg("outcome mail failed")
	}
	return nil
}

// Listings

func (s *BookingService) ListClientAppointments(ctx context.Context, clientID uuid.UUID) ([]AppointmentDetail, error) {
	return s.repo.ListLiveAppointmentsByClient(ctx, clientID)
}

func (s *BookingService) CountClientAppointments(ctx context.Context, clientID uuid.UUID) (int, error) {
	return s.repo.CountLiveAppointmentsByClient(ctx, clientID)
}

func (s *BookingService) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	return s.repo.ListPaidAppointmentsByDoctor(ctx, doctorID)
}

func (s *BookingService) ClientHistory(ctx context.Context, clientID uuid.UUID, outcomeFilter string) ([]HistoricalDetail, error) {
	outcome, err := parseOutcomeFilter(outcomeFilter)
	if err != nil {
		return nil, err
	}
	return s.repo.ListHistoryByClient(ctx, clientID, outcome)
}

func (s *BookingService) DoctorHistory(ctx context.Context, doctorID uuid.UUID, outcomeFilter string) ([]HistoricalDetail, error) {
	outcome, err := parseOutcomeFilter(outcomeFilter)
	if err != nil {
		return nil, err
	}
	return s.repo.ListHistoryByDoctor(ctx, doctorID, outcome)
}

func parseOutcomeFilter(filter string) (*Outcome, error) {
	switch Outcome(filter) {
	case "":
		return nil, nil
	case OutcomeCompleted, OutcomeCancelled:
		o := Outcome(filter)
		return &o, nil
	default:
		return nil, fmt.Errorf("%w: outcome filter must be completed or cancelled", ErrInvalidArgument)
	}
}

func (s *BookingService) mailData(data *NotificationData) notify.Data {
	return mailData(data, s.paymentWindow)
}

// mailData converts joined notification data into the mail payload.
func mailData(data *NotificationData, paymentWindow time.Duration) notify.Data {
	return notify.Data{
		AppointmentID: data.AppointmentID.String(),
		ClientName:    data.ClientName,
		PatientName:   data.PatientName,
		DoctorName:    data.DoctorName,
		Specialty:     data.Specialty,
		Date:          data.StartAt.Format(dateLayout),
		Time:          data.StartAt.Format(timeLayout),
		Amount:        data.Price,
		PaymentWindow: fmt.Sprintf("%d minutes", int(paymentWindow.Minutes())),
	}
}
