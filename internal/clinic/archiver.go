package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// archiveAppointment moves a terminal appointment out of the live tables.
// It must run inside a transaction: the historical copy, the payment move
// (or deletion) and the live-row deletes either all happen or none do.
//
// archivePayment selects what happens to an attached payment: doctor-recorded
// outcomes carry it into historical_payments; a client cancellation deletes
// it outright, since a never-settled payment is not a historical record.
func archiveAppointment(ctx context.Context, tx Repository, appt *Appointment, outcome Outcome, reason *string, archivePayment bool, now time.Time) error {
	hist := &HistoricalAppointment{
		AppointmentID: appt.ID,
		ClientID:      appt.ClientID,
		DependentID:   appt.DependentID,
		DoctorID:      appt.DoctorID,
		SlotID:        appt.SlotID,
		Specialty:     appt.Specialty,
		Outcome:       outcome,
		Reason:        reason,
		ArchivedAt:    now,
	}
	if err := tx.InsertHistoricalAppointment(ctx, hist); err != nil {
		return err
	}

	pay, err := tx.GetPaymentByAppointment(ctx, appt.ID)
	switch {
	case err == nil:
		if archivePayment {
			histPay := &HistoricalPayment{
				PaymentID:     pay.ID,
				AppointmentID: pay.AppointmentID,
				Amount:        pay.Amount,
				State:         pay.State,
				CreatedAt:     pay.CreatedAt,
				PaidAt:        pay.PaidAt,
				Method:        pay.Method,
				ReceiptType:   pay.ReceiptType,
				TaxID:         pay.TaxID,
				MovedAt:       now,
			}
			if err := tx.InsertHistoricalPayment(ctx, histPay); err != nil {
				return err
			}
		}
		if _, err := tx.DeletePaymentsForAppointment(ctx, appt.ID); err != nil {
			return err
		}
	case errors.Is(err, ErrPaymentNotFound):
		// nothing to move
	default:
		return fmt.Errorf("load payment for archive: %w", err)
	}

	return tx.DeleteAppointment(ctx, appt.ID)
}
