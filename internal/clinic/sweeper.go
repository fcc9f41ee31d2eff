package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cismedic/clinic-booking/internal/notify"
)

// Sweeper deletes appointments whose payment window elapsed without a
// settlement. It runs one pass per call; scheduling belongs to whoever
// invokes it.
type Sweeper struct {
	repo     Repository
	notifier notify.Notifier
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewSweeper(repo Repository, notifier notify.Notifier, timeout time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		notifier: notifier,
		timeout:  timeout,
		log:      log.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
	}
}

type SweepResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Run performs one sweep. Each expired appointment is notified and deleted
// independently, so one failure never blocks the rest of the batch. The
// expiry mail goes out before the delete because the notification data joins
// rows the delete removes.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.timeout)

	expired, err := s.repo.FindExpiredPending(ctx, cutoff)
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Scanned: len(expired)}
	for _, appt := range expired {
		deleted, err := s.sweepOne(ctx, appt)
		if err != nil {
			res.Failed++
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("sweep failed")
			continue
		}
		if deleted {
			res.Deleted++
		}
	}

	s.log.Info().Int("scanned", res.Scanned).Int("deleted", res.Deleted).
		Int("failed", res.Failed).Msg("sweep complete")
	return res, nil
}

// sweepOne reports whether the appointment was deleted. The candidate list is
// a snapshot taken outside any transaction, and a gateway webhook can settle
// the payment at any moment before the delete commits. The pending state is
// therefore checked twice: once before the expiry mail, so a client who just
// paid is not told their booking expired, and once more under a row lock
// inside the delete transaction, where the check is authoritative.
func (s *Sweeper) sweepOne(ctx context.Context, appt Appointment) (bool, error) {
	payment, err := s.repo.GetPaymentByAppointment(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return false, nil
		}
		return false, err
	}
	if payment.State != PaymentPending {
		return false, nil
	}

	data, err := s.repo.GetBookingNotification(ctx, appt.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).
			Msg("expiry mail data unavailable, deleting anyway")
	} else {
		nd := mailData(data, s.timeout)
		if err := s.notifier.Send(ctx, notify.AppointmentExpired, data.ClientEmail, nd); err != nil {
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("expiry mail failed")
		}
	}

	deleted := false
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		p, err := tx.GetPaymentForUpdate(ctx, payment.ID)
		if err != nil {
			if errors.Is(err, ErrPaymentNotFound) {
				return nil
			}
			return err
		}
		if p.State != PaymentPending {
			s.log.Info().Str("appointment_id", appt.ID.String()).
				Msg("payment settled during sweep, keeping appointment")
			return nil
		}
		if _, err := tx.DeletePaymentsForAppointment(ctx, appt.ID); err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, appt.ID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}
