package clinic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cismedic/clinic-booking/internal/notify"
	redisclient "github.com/cismedic/clinic-booking/internal/redis"
)

// memRepo is an in-memory Repository for service tests. WithTx serializes
// transactions with a mutex and restores a snapshot when fn fails, so
// rollback behavior is observable without a database.
type memRepo struct {
	txMu sync.Mutex // serializes transactions
	mu   sync.Mutex // guards the maps

	users      map[uuid.UUID]memUser
	dependents map[uuid.UUID]memDependent
	slots      map[uuid.UUID]*TimeSlot
	appts      map[uuid.UUID]*Appointment
	payments   map[uuid.UUID]*Payment
	histAppts  map[uuid.UUID]*HistoricalAppointment
	histPays   map[uuid.UUID]*HistoricalPayment

	// failure injection
	failDeleteAppointment map[uuid.UUID]bool
	failCreatePayment     bool
}

type memUser struct {
	name  string
	email string
}

type memDependent struct {
	clientID uuid.UUID
	name     string
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:                 make(map[uuid.UUID]memUser),
		dependents:            make(map[uuid.UUID]memDependent),
		slots:                 make(map[uuid.UUID]*TimeSlot),
		appts:                 make(map[uuid.UUID]*Appointment),
		payments:              make(map[uuid.UUID]*Payment),
		histAppts:             make(map[uuid.UUID]*HistoricalAppointment),
		histPays:              make(map[uuid.UUID]*HistoricalPayment),
		failDeleteAppointment: make(map[uuid.UUID]bool),
	}
}

func (m *memRepo) addUser(name, email string) uuid.UUID {
	id := uuid.New()
	m.users[id] = memUser{name: name, email: email}
	return id
}

func (m *memRepo) addDependent(clientID uuid.UUID, name string) uuid.UUID {
	id := uuid.New()
	m.dependents[id] = memDependent{clientID: clientID, name: name}
	return id
}

func (m *memRepo) addSlot(doctorID uuid.UUID, startAt time.Time, price float64) *TimeSlot {
	slot := &TimeSlot{
		ID:       uuid.New(),
		DoctorID: doctorID,
		StartAt:  startAt,
		Price:    price,
		State:    SlotActive,
	}
	m.slots[slot.ID] = slot
	return slot
}

type snapshot struct {
	slots     map[uuid.UUID]*TimeSlot
	appts     map[uuid.UUID]*Appointment
	payments  map[uuid.UUID]*Payment
	histAppts map[uuid.UUID]*HistoricalAppointment
	histPays  map[uuid.UUID]*HistoricalPayment
}

func (m *memRepo) snapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := snapshot{
		slots:     make(map[uuid.UUID]*TimeSlot, len(m.slots)),
		appts:     make(map[uuid.UUID]*Appointment, len(m.appts)),
		payments:  make(map[uuid.UUID]*Payment, len(m.payments)),
		histAppts: make(map[uuid.UUID]*HistoricalAppointment, len(m.histAppts)),
		histPays:  make(map[uuid.UUID]*HistoricalPayment, len(m.histPays)),
	}
	for k, v := range m.slots {
		c := *v
		snap.slots[k] = &c
	}
	for k, v := range m.appts {
		c := *v
		snap.appts[k] = &c
	}
	for k, v := range m.payments {
		c := *v
		snap.payments[k] = &c
	}
	for k, v := range m.histAppts {
		c := *v
		snap.histAppts[k] = &c
	}
	for k, v := range m.histPays {
		c := *v
		snap.histPays[k] = &c
	}
	return snap
}

func (m *memRepo) restore(snap snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = snap.slots
	m.appts = snap.appts
	m.payments = snap.payments
	m.histAppts = snap.histAppts
	m.histPays = snap.histPays
}

func (m *memRepo) WithTx(ctx context.Context, fn func(Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// Slots

func (m *memRepo) CreateSlot(ctx context.Context, s *TimeSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.slots[s.ID] = &c
	return nil
}

func (m *memRepo) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	c := *s
	return &c, nil
}

func (m *memRepo) GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	return m.GetSlotByID(ctx, id)
}

func (m *memRepo) RetireSlot(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || s.State != SlotActive {
		return ErrSlotNotFound
	}
	s.State = SlotRetired
	return nil
}

func (m *memRepo) ListActiveSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TimeSlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.State == SlotActive &&
			!s.StartAt.Before(from) && s.StartAt.Before(to) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// Appointments

func (m *memRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	c := *a
	return &c, nil
}

func (m *memRepo) GetLiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.SlotID == slotID {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) CreateAppointment(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.appts {
		if other.SlotID == a.SlotID {
			return ErrSlotTaken
		}
	}
	c := *a
	m.appts[a.ID] = &c
	return nil
}

func (m *memRepo) SetAppointmentState(ctx context.Context, id uuid.UUID, from, to AppointmentState) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.State != from {
		return nil, ErrAppointmentNotFound
	}
	a.State = to
	c := *a
	return &c, nil
}

func (m *memRepo) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteAppointment[id] {
		return fmt.Errorf("injected delete failure")
	}
	if _, ok := m.appts[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.appts, id)
	return nil
}

func (m *memRepo) ListLiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appts {
		if a.ClientID == clientID {
			out = append(out, m.detailLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *memRepo) ListPaidAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.State == StatusPaid {
			out = append(out, m.detailLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *memRepo) CountLiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appts {
		if a.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) LiveSlotIDs(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[uuid.UUID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]struct{})
	for _, a := range m.appts {
		slot, ok := m.slots[a.SlotID]
		if ok && slot.DoctorID == doctorID && !slot.StartAt.Before(from) && slot.StartAt.Before(to) {
			out[a.SlotID] = struct{}{}
		}
	}
	return out, nil
}

func (m *memRepo) CancelledSlotIDs(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[uuid.UUID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]struct{})
	for _, h := range m.histAppts {
		if h.Outcome != OutcomeCancelled {
			continue
		}
		slot, ok := m.slots[h.SlotID]
		if ok && slot.DoctorID == doctorID && !slot.StartAt.Before(from) && slot.StartAt.Before(to) {
			out[h.SlotID] = struct{}{}
		}
	}
	return out, nil
}

// Payments

func (m *memRepo) CreatePayment(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreatePayment {
		return fmt.Errorf("injected payment failure")
	}
	for _, other := range m.payments {
		if other.AppointmentID == p.AppointmentID {
			return ErrPaymentExists
		}
	}
	c := *p
	m.payments[p.ID] = &c
	return nil
}

func (m *memRepo) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (m *memRepo) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return m.GetPaymentByID(ctx, id)
}

func (m *memRepo) GetPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.AppointmentID == appointmentID {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *memRepo) UpdateReceiptPreference(ctx context.Context, id uuid.UUID, rt ReceiptType, taxID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.ReceiptType = &rt
	p.TaxID = taxID
	return nil
}

func (m *memRepo) MarkPaymentPaid(ctx context.Context, id uuid.UUID, method string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.State = PaymentPaid
	p.Method = &method
	p.PaidAt = &paidAt
	return nil
}

func (m *memRepo) DeletePaymentsForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.payments {
		if p.AppointmentID == appointmentID {
			delete(m.payments, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountPendingPaymentsByClient(ctx context.Context, clientID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.payments {
		if p.State != PaymentPending {
			continue
		}
		if a, ok := m.appts[p.AppointmentID]; ok && a.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

// History

func (m *memRepo) InsertHistoricalAppointment(ctx context.Context, h *HistoricalAppointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *h
	m.histAppts[h.AppointmentID] = &c
	return nil
}

func (m *memRepo) InsertHistoricalPayment(ctx context.Context, h *HistoricalPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *h
	m.histPays[h.PaymentID] = &c
	return nil
}

func (m *memRepo) ListHistoryByClient(ctx context.Context, clientID uuid.UUID, outcome *Outcome) ([]HistoricalDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoricalDetail
	for _, h := range m.histAppts {
		if h.ClientID == clientID && (outcome == nil || h.Outcome == *outcome) {
			out = append(out, m.histDetailLocked(h))
		}
	}
	return out, nil
}

func (m *memRepo) ListHistoryByDoctor(ctx context.Context, doctorID uuid.UUID, outcome *Outcome) ([]HistoricalDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoricalDetail
	for _, h := range m.histAppts {
		if h.DoctorID == doctorID && (outcome == nil || h.Outcome == *outcome) {
			out = append(out, m.histDetailLocked(h))
		}
	}
	return out, nil
}

func (m *memRepo) FindExpiredPending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.State != StatusPaymentPending {
			continue
		}
		for _, p := range m.payments {
			if p.AppointmentID == a.ID && p.State == PaymentPending && !p.CreatedAt.After(cutoff) {
				out = append(out, *a)
				break
			}
		}
	}
	return out, nil
}

func (m *memRepo) GetBookingNotification(ctx context.Context, appointmentID uuid.UUID) (*NotificationData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[appointmentID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	slot := m.slots[a.SlotID]
	client := m.users[a.ClientID]
	doctor := m.users[a.DoctorID]

	patient := client.name
	if a.DependentID != nil {
		patient = m.dependents[*a.DependentID].name
	}

	return &NotificationData{
		AppointmentID: a.ID,
		ClientName:    client.name,
		ClientEmail:   client.email,
		PatientName:   patient,
		DoctorName:    doctor.name,
		Specialty:     a.Specialty,
		StartAt:       slot.StartAt,
		Price:         slot.Price,
	}, nil
}

func (m *memRepo) detailLocked(a *Appointment) AppointmentDetail {
	slot := m.slots[a.SlotID]
	d := AppointmentDetail{
		Appointment: *a,
		ClientName:  m.users[a.ClientID].name,
		PatientName: m.users[a.ClientID].name,
		DoctorName:  m.users[a.DoctorID].name,
		StartAt:     slot.StartAt,
		Price:       slot.Price,
	}
	if a.DependentID != nil {
		d.PatientName = m.dependents[*a.DependentID].name
	}
	for _, p := range m.payments {
		if p.AppointmentID == a.ID {
			id := p.ID
			d.PaymentID = &id
			break
		}
	}
	return d
}

func (m *memRepo) histDetailLocked(h *HistoricalAppointment) HistoricalDetail {
	d := HistoricalDetail{
		HistoricalAppointment: *h,
		ClientName:            m.users[h.ClientID].name,
		PatientName:           m.users[h.ClientID].name,
		DoctorName:            m.users[h.DoctorID].name,
	}
	if slot, ok := m.slots[h.SlotID]; ok {
		d.StartAt = slot.StartAt
		d.Price = slot.Price
	}
	if h.DependentID != nil {
		d.PatientName = m.dependents[*h.DependentID].name
	}
	for _, p := range m.histPays {
		if p.AppointmentID == h.AppointmentID {
			id := p.PaymentID
			d.PaymentID = &id
			break
		}
	}
	return d
}

// fakeNotifier records every dispatched mail. onSend, when set, runs after
// the mail is recorded and outside the notifier's own lock, so a test can
// interleave service calls with a dispatch.
type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentMail
	fail   bool
	onSend func(tmpl notify.Template)
}

type sentMail struct {
	tmpl        notify.Template
	recipient   string
	data        notify.Data
	attachments []notify.Attachment
}

func (f *fakeNotifier) Send(ctx context.Context, tmpl notify.Template, recipient string, data notify.Data, attachments ...notify.Attachment) error {
	f.mu.Lock()
	if f.fail {
		f.mu.Unlock()
		return fmt.Errorf("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{tmpl: tmpl, recipient: recipient, data: data, attachments: attachments})
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(tmpl)
	}
	return nil
}

func (f *fakeNotifier) sentTemplates() []notify.Template {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Template, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.tmpl)
	}
	return out
}

// fakeLocker hands the lock to one caller per slot at a time; a contended
// caller fails fast like the Redis SetNX lock does.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (f *fakeLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	l, ok := f.locks[slotID]
	if !ok {
		l = &sync.Mutex{}
		f.locks[slotID] = l
	}
	f.mu.Unlock()

	if !l.TryLock() {
		return redisclient.ErrLockNotAcquired
	}
	defer l.Unlock()
	return fn(ctx)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
