package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cismedic/clinic-booking/internal/gateway"
	"github.com/cismedic/clinic-booking/internal/notify"
)

type fakeGateway struct {
	payments map[string]*gateway.PaymentInfo
	err      error
}

func (f *fakeGateway) GetPayment(ctx context.Context, id string) (*gateway.PaymentInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("gateway: payment %s not found", id)
	}
	return info, nil
}

type memDocStore struct {
	docs map[string][]byte
}

func (m *memDocStore) Put(ctx context.Context, logicalPath string, data []byte) (string, error) {
	if m.docs == nil {
		m.docs = make(map[string][]byte)
	}
	m.docs[logicalPath] = data
	return logicalPath, nil
}

type paymentFixture struct {
	repo     *memRepo
	notifier *fakeNotifier
	docs     *memDocStore
	gw       *fakeGateway
	ledger   *PaymentLedger
	booking  *BookingService
	doctorID uuid.UUID
	clientID uuid.UUID
	slot     *TimeSlot
	appt     *Appointment
	payment  *Payment
	now      time.Time
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	repo := newMemRepo()
	notifier := &fakeNotifier{}
	docs := &memDocStore{}
	gw := &fakeGateway{payments: make(map[string]*gateway.PaymentInfo)}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	doctorID := repo.addUser("Dr. Vega", "vega@clinic.test")
	clientID := repo.addUser("Ana Torres", "ana@clinic.test")
	slot := repo.addSlot(doctorID, now.Add(48*time.Hour), 150)

	booking := NewBookingService(repo, newFakeLocker(), notifier, paymentWindow, testLogger())
	booking.now = fixedNow(now)

	appt, err := booking.Book(context.Background(), BookParams{
		ClientID:  clientID,
		DoctorID:  doctorID,
		SlotID:    slot.ID,
		Specialty: "Cardiology",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	payment, err := repo.GetPaymentByAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("payment missing: %v", err)
	}

	ledger := NewPaymentLedger(repo, notifier, docs, gw, testLogger())
	ledger.now = fixedNow(now)

	return &paymentFixture{
		repo:     repo,
		notifier: notifier,
		docs:     docs,
		gw:       gw,
		ledger:   ledger,
		booking:  booking,
		doctorID: doctorID,
		clientID: clientID,
		slot:     slot,
		appt:     appt,
		payment:  payment,
		now:      now,
	}
}

func TestOpenPending_ConflictWhenPaymentExists(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.ledger.OpenPending(context.Background(), f.appt.ID, 150)
	if !errors.Is(err, ErrPaymentExists) {
		t.Fatalf("expected ErrPaymentExists, got %v", err)
	}
}

func TestOpenPending_RegeneratesAfterDeletion(t *testing.T) {
	f := newPaymentFixture(t)

	if _, err := f.repo.DeletePaymentsForAppointment(context.Background(), f.appt.ID); err != nil {
		t.Fatalf("delete payments: %v", err)
	}

	pay, err := f.ledger.OpenPending(context.Background(), f.appt.ID, 150)
	if err != nil {
		t.Fatalf("OpenPending: %v", err)
	}
	if pay.State != PaymentPending {
		t.Fatalf("state = %s, want pending", pay.State)
	}
	if !pay.CreatedAt.Equal(f.now) {
		t.Fatalf("created_at = %v, want %v; regeneration restarts the window", pay.CreatedAt, f.now)
	}

	if _, err := f.ledger.OpenPending(context.Background(), uuid.New(), 150); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
	if _, err := f.ledger.OpenPending(context.Background(), f.appt.ID, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative amount, got %v", err)
	}
}

func TestSetReceiptPreference_InvoiceNeedsTaxID(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	if err := f.ledger.SetReceiptPreference(ctx, f.payment.ID, ReceiptInvoice, "123"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for short tax id, got %v", err)
	}
	if err := f.ledger.SetReceiptPreference(ctx, f.payment.ID, ReceiptType("napkin"), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for unknown type, got %v", err)
	}

	if err := f.ledger.SetReceiptPreference(ctx, f.payment.ID, ReceiptInvoice, "20123456789"); err != nil {
		t.Fatalf("SetReceiptPreference: %v", err)
	}

	pay, _ := f.repo.GetPaymentByID(ctx, f.payment.ID)
	if pay.ReceiptType == nil || *pay.ReceiptType != ReceiptInvoice {
		t.Fatalf("receipt type = %v, want invoice", pay.ReceiptType)
	}
	if pay.TaxID == nil || *pay.TaxID != "20123456789" {
		t.Fatalf("tax id = %v", pay.TaxID)
	}
}

func TestSetReceiptPreference_LockedOncePaid(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	if err := f.ledger.Settle(ctx, f.payment.ID, "card"); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := f.ledger.SetReceiptPreference(ctx, f.payment.ID, ReceiptRetail, ""); !errors.Is(err, ErrPaymentNotPending) {
		t.Fatalf("expected ErrPaymentNotPending, got %v", err)
	}
}

func TestSettle_PromotesAppointmentAndIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	if err := f.ledger.SetReceiptPreference(ctx, f.payment.ID, ReceiptRetail, ""); err != nil {
		t.Fatalf("SetReceiptPreference: %v", err)
	}
	if err := f.ledger.Settle(ctx, f.payment.ID, "card"); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	pay, _ := f.repo.GetPaymentByID(ctx, f.payment.ID)
	if pay.State != PaymentPaid {
		t.Fatalf("payment state = %s, want paid", pay.State)
	}
	if pay.Method == nil || *pay.Method != "card" {
		t.Fatalf("method = %v, want card", pay.Method)
	}

	appt, _ := f.repo.GetAppointmentByID(ctx, f.appt.ID)
	if appt.State != StatusPaid {
		t.Fatalf("appointment state = %s, want paid", appt.State)
	}

	mailsAfterFirst := len(f.notifier.sentTemplates())

	// duplicate settlement is a silent no-op
	if err := f.ledger.Settle(ctx, f.payment.ID, "cash"); err != nil {
		t.Fatalf("duplicate Settle: %v", err)
	}
	pay, _ = f.repo.GetPaymentByID(ctx, f.payment.ID)
	if *pay.Method != "card" {
		t.Fatalf("duplicate settle overwrote method: %v", *pay.Method)
	}
	if got := len(f.notifier.sentTemplates()); got != mailsAfterFirst {
		t.Fatalf("duplicate settle sent %d extra mails", got-mailsAfterFirst)
	}
}

func TestSettle_IssuesReceiptDocumentAndMail(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	if err := f.ledger.SetReceiptPreference(ctx, f.payment.ID, ReceiptInvoice, "20123456789"); err != nil {
		t.Fatalf("SetReceiptPreference: %v", err)
	}
	if err := f.ledger.Settle(ctx, f.payment.ID, "card"); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	docPath := fmt.Sprintf("receipts/%s.txt", f.payment.ID)
	doc, ok := f.docs.docs[docPath]
	if !ok {
		t.Fatalf("receipt document not stored at %s", docPath)
	}
	if !strings.Contains(string(doc), "INVOICE") || !strings.Contains(string(doc), "20123456789") {
		t.Fatalf("invoice document missing fields:\n%s", doc)
	}

	tmpls := f.notifier.sentTemplates()
	last := tmpls[len(tmpls)-1]
	if last != notify.PaymentCompletedInvoice {
		t.Fatalf("last mail = %s, want payment-completed-invoice", last)
	}

	f.notifier.mu.Lock()
	mail := f.notifier.sent[len(f.notifier.sent)-1]
	f.notifier.mu.Unlock()
	if len(mail.attachments) != 1 {
		t.Fatalf("receipt mail attachments = %d, want 1", len(mail.attachments))
	}
}

func TestSettle_NoPreferenceSkipsReceiptButSettles(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	before := len(f.notifier.sentTemplates())
	if err := f.ledger.Settle(ctx, f.payment.ID, "card"); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	pay, _ := f.repo.GetPaymentByID(ctx, f.payment.ID)
	if pay.State != PaymentPaid {
		t.Fatalf("payment state = %s, want paid", pay.State)
	}
	if got := len(f.notifier.sentTemplates()); got != before {
		t.Fatalf("settlement without a preference sent %d mails", got-before)
	}
	if len(f.docs.docs) != 0 {
		t.Fatal("no document should be generated without a receipt preference")
	}
}

func TestHandleGatewayEvent_ApprovedSettles(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.gw.payments["ext-1"] = &gateway.PaymentInfo{
		ID:                "ext-1",
		Status:            gateway.StatusApproved,
		Method:            "credit_card",
		ExternalReference: f.payment.ID.String(),
	}

	if err := f.ledger.HandleGatewayEvent(ctx, "payment", "ext-1"); err != nil {
		t.Fatalf("HandleGatewayEvent: %v", err)
	}

	pay, _ := f.repo.GetPaymentByID(ctx, f.payment.ID)
	if pay.State != PaymentPaid {
		t.Fatalf("payment state = %s, want paid", pay.State)
	}
}

func TestHandleGatewayEvent_NonApprovedIsNoOp(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.gw.payments["ext-1"] = &gateway.PaymentInfo{
		ID:                "ext-1",
		Status:            "rejected",
		ExternalReference: f.payment.ID.String(),
	}

	if err := f.ledger.HandleGatewayEvent(ctx, "payment", "ext-1"); err != nil {
		t.Fatalf("HandleGatewayEvent: %v", err)
	}

	pay, _ := f.repo.GetPaymentByID(ctx, f.payment.ID)
	if pay.State != PaymentPending {
		t.Fatalf("payment state = %s, want still pending", pay.State)
	}
}

func TestHandleGatewayEvent_UnmatchedReferenceIsSuccessNoOp(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	// reference that parses but matches nothing
	f.gw.payments["ext-1"] = &gateway.PaymentInfo{
		ID:                "ext-1",
		Status:            gateway.StatusApproved,
		Method:            "credit_card",
		ExternalReference: uuid.NewString(),
	}
	if err := f.ledger.HandleGatewayEvent(ctx, "payment", "ext-1"); err != nil {
		t.Fatalf("unmatched reference should be acknowledged, got %v", err)
	}

	// reference that does not even parse
	f.gw.payments["ext-2"] = &gateway.PaymentInfo{
		ID:                "ext-2",
		Status:            gateway.StatusApproved,
		ExternalReference: "order-991",
	}
	if err := f.ledger.HandleGatewayEvent(ctx, "payment", "ext-2"); err != nil {
		t.Fatalf("garbage reference should be acknowledged, got %v", err)
	}
}

func TestHandleGatewayEvent_Validation(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	if err := f.ledger.HandleGatewayEvent(ctx, "subscription", "ext-1"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for foreign event type, got %v", err)
	}
	if err := f.ledger.HandleGatewayEvent(ctx, "payment", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty id, got %v", err)
	}

	f.gw.err = fmt.Errorf("gateway down")
	if err := f.ledger.HandleGatewayEvent(ctx, "payment", "ext-1"); err == nil {
		t.Fatal("gateway failures must propagate so the event is retried")
	}
}

func TestCountPendingPayments(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	n, err := f.ledger.CountPendingPayments(ctx, f.clientID)
	if err != nil || n != 1 {
		t.Fatalf("pending count = %d, %v; want 1", n, err)
	}

	if err := f.ledger.Settle(ctx, f.payment.ID, "card"); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	n, err = f.ledger.CountPendingPayments(ctx, f.clientID)
	if err != nil || n != 0 {
		t.Fatalf("pending count after settle = %d, %v; want 0", n, err)
	}
}
