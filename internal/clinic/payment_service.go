package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cismedic/clinic-booking/internal/docstore"
	"github.com/cismedic/clinic-booking/internal/gateway"
	"github.com/cismedic/clinic-booking/internal/notify"
)

const invoiceTaxIDLen = 11

// PaymentLedger manages the lifecycle of appointment payments: opening the
// pending record, recording the client's receipt preference, settling, and
// reacting to gateway webhook events.
type PaymentLedger struct {
	repo     Repository
	notifier notify.Notifier
	docs     docstore.Store
	gw       gateway.Client
	log      zerolog.Logger
	now      func() time.Time
}

func NewPaymentLedger(repo Repository, notifier notify.Notifier, docs docstore.Store, gw gateway.Client, log zerolog.Logger) *PaymentLedger {
	return &PaymentLedger{
		repo:     repo,
		notifier: notifier,
		docs:     docs,
		gw:       gw,
		log:      log.With().Str("component", "payments").Logger(),
		now:      time.Now,
	}
}

// OpenPending creates the pending payment for an appointment. Booking does
// this itself in the same transaction; OpenPending covers appointments that
// lost their payment record and need one regenerated. The generation time
// restarts the payment window.
func (s *PaymentLedger) OpenPending(ctx context.Context, appointmentID uuid.UUID, amount float64) (*Payment, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidArgument)
	}
	if _, err := s.repo.GetAppointmentByID(ctx, appointmentID); err != nil {
		return nil, err
	}

	pay := &Payment{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		Amount:        amount,
		State:         PaymentPending,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreatePayment(ctx, pay); err != nil {
		return nil, err
	}

	s.log.Info().Str("payment_id", pay.ID.String()).
		Str("appointment_id", appointmentID.String()).Msg("pending payment opened")
	return pay, nil
}

// SetReceiptPreference records which document the client wants when the
// payment settles. An invoice needs the client's 11-digit tax ID; the
// preference is only changeable while the payment is still pending.
func (s *PaymentLedger) SetReceiptPreference(ctx context.Context, paymentID uuid.UUID, rt ReceiptType, taxID string) error {
	taxID = strings.TrimSpace(taxID)

	var taxIDPtr *string
	switch rt {
	case ReceiptRetail:
	case ReceiptInvoice:
		if len(taxID) != invoiceTaxIDLen {
			return fmt.Errorf("%w: an invoice requires an %d-character tax id", ErrInvalidArgument, invoiceTaxIDLen)
		}
		taxIDPtr = &taxID
	default:
		return fmt.Errorf("%w: receipt type must be retail_receipt or invoice", ErrInvalidArgument)
	}

	return s.repo.WithTx(ctx, func(tx Repository) error {
		pay, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay.State != PaymentPending {
			return ErrPaymentNotPending
		}
		return tx.UpdateReceiptPreference(ctx, paymentID, rt, taxIDPtr)
	})
}

// Settle marks a payment paid and moves its appointment from payment_pending
// to paid. Settling an already-paid payment is a successful no-op, so a
// retried webhook never double-applies. The receipt is issued only on the
// first settlement.
func (s *PaymentLedger) Settle(ctx context.Context, paymentID uuid.UUID, method string) error {
	var settled bool

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		pay, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if pay.State == PaymentPaid {
			return nil
		}

		if err := tx.MarkPaymentPaid(ctx, paymentID, method, s.now()); err != nil {
			return err
		}
		if _, err := tx.SetAppointmentState(ctx, pay.AppointmentID, StatusPaymentPending, StatusPaid); err != nil {
			return fmt.Errorf("promote appointment %s: %w", pay.AppointmentID, err)
		}
		settled = true
		return nil
	})
	if err != nil {
		return err
	}
	if !settled {
		return nil
	}

	s.log.Info().Str("payment_id", paymentID.String()).Str("method", method).Msg("payment settled")

	s.issueReceipt(ctx, paymentID)
	return nil
}

// issueReceipt generates and stores the settled payment's document and mails
// it to the client. Failures are logged; the settlement already committed.
func (s *PaymentLedger) issueReceipt(ctx context.Context, paymentID uuid.UUID) {
	pay, err := s.repo.GetPaymentByID(ctx, paymentID)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("receipt: payment load failed")
		return
	}
	if pay.ReceiptType == nil {
		s.log.Info().Str("payment_id", paymentID.String()).Msg("receipt: no preference recorded, skipping")
		return
	}

	data, err := s.repo.GetBookingNotification(ctx, pay.AppointmentID)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("receipt: notification data unavailable")
		return
	}

	doc := renderReceipt(pay, data)
	ref, err := s.docs.Put(ctx, fmt.Sprintf("receipts/%s.txt", pay.ID), doc)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("receipt: document store failed")
		return
	}
	s.log.Info().Str("payment_id", paymentID.String()).Str("document", ref).Msg("receipt stored")

	tmpl := notify.PaymentCompletedRetail
	if *pay.ReceiptType == ReceiptInvoice {
		tmpl = notify.PaymentCompletedInvoice
	}

	nd := mailData(data, 0)
	nd.Amount = pay.Amount
	if pay.TaxID != nil {
		nd.TaxID = *pay.TaxID
	}
	att := notify.Attachment{Filename: fmt.Sprintf("receipt-%s.txt", pay.ID), Content: doc}
	if err := s.notifier.Send(ctx, tmpl, data.ClientEmail, nd, att); err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("receipt mail failed")
	}
}

// renderReceipt produces the plain-text payment document.
func renderReceipt(pay *Payment, data *NotificationData) []byte {
	var b strings.Builder

	kind := "RECEIPT"
	if pay.ReceiptType != nil && *pay.ReceiptType == ReceiptInvoice {
		kind = "INVOICE"
	}
	fmt.Fprintf(&b, "%s %s\n\n", kind, pay.ID)
	fmt.Fprintf(&b, "Client:      %s\n", data.ClientName)
	if pay.TaxID != nil {
		fmt.Fprintf(&b, "Tax ID:      %s\n", *pay.TaxID)
	}
	fmt.Fprintf(&b, "Patient:     %s\n", data.PatientName)
	fmt.Fprintf(&b, "Doctor:      %s\n", data.DoctorName)
	fmt.Fprintf(&b, "Specialty:   %s\n", data.Specialty)
	fmt.Fprintf(&b, "Appointment: %s\n", data.StartAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Amount:      S/ %.2f\n", pay.Amount)
	if pay.Method != nil {
		fmt.Fprintf(&b, "Method:      %s\n", *pay.Method)
	}
	if pay.PaidAt != nil {
		fmt.Fprintf(&b, "Paid at:     %s\n", pay.PaidAt.Format(time.RFC3339))
	}
	return []byte(b.String())
}

// HandleGatewayEvent processes a payment webhook. The event only names the
// gateway's payment ID; the authoritative status comes from querying the
// gateway back. Events that cannot be matched to a ledger payment are
// acknowledged with a warning so the gateway stops retrying them.
func (s *PaymentLedger) HandleGatewayEvent(ctx context.Context, eventType, externalPaymentID string) error {
	if eventType != "payment" {
		return fmt.Errorf("%w: unsupported event type %q", ErrInvalidArgument, eventType)
	}
	if externalPaymentID == "" {
		return fmt.Errorf("%w: missing payment id", ErrInvalidArgument)
	}

	info, err := s.gw.GetPayment(ctx, externalPaymentID)
	if err != nil {
		return fmt.Errorf("gateway lookup: %w", err)
	}

	paymentID, err := uuid.Parse(info.ExternalReference)
	if err != nil {
		s.log.Warn().Str("external_payment_id", externalPaymentID).
			Str("external_reference", info.ExternalReference).
			Msg("webhook: reference does not name a payment, ignoring")
		return nil
	}

	if info.Status != gateway.StatusApproved {
		s.log.Info().Str("payment_id", paymentID.String()).Str("status", info.Status).
			Msg("webhook: non-approved status, nothing to settle")
		return nil
	}

	err = s.Settle(ctx, paymentID, info.Method)
	if errors.Is(err, ErrPaymentNotFound) {
		s.log.Warn().Str("payment_id", paymentID.String()).
			Str("external_payment_id", externalPaymentID).
			Msg("webhook: no matching payment, ignoring")
		return nil
	}
	return err
}

func (s *PaymentLedger) GetPayment(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	return s.repo.GetPaymentByID(ctx, paymentID)
}

func (s *PaymentLedger) CountPendingPayments(ctx context.Context, clientID uuid.UUID) (int, error) {
	return s.repo.CountPendingPaymentsByClient(ctx, clientID)
}
