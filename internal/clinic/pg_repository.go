package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same query
// methods serve plain and transactional repositories.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db   querier
	pool *pgxpool.Pool // nil when db is a transaction
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool, pool: pool}
}

// WithTx begins a transaction and runs fn against a tx-scoped repository.
// Commit on nil, rollback on error or panic. Nested calls reuse the open
// transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &PgRepository{db: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Scan helpers

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartAt,
		&s.Price,
		&s.State,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.DependentID,
		&a.DoctorID,
		&a.SlotID,
		&a.Specialty,
		&a.State,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.Amount,
		&p.State,
		&p.CreatedAt,
		&p.PaidAt,
		&p.Method,
		&p.ReceiptType,
		&p.TaxID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Slots

func (r *PgRepository) CreateSlot(ctx context.Context, s *TimeSlot) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO time_slots (id, doctor_id, start_at, price, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, s.ID, s.DoctorID, s.StartAt, s.Price, s.State)
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

const slotColumns = `id, doctor_id, start_at, price, state, created_at, updated_at`

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) RetireSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE time_slots
		SET state = $2,
		    updated_at = now()
		WHERE id = $1
		  AND state = $3
	`, id, SlotRetired, SlotActive)
	if err != nil {
		return fmt.Errorf("retire slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) ListActiveSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND state = $2
		  AND start_at >= $3
		  AND start_at < $4
		ORDER BY start_at ASC
	`, doctorID, SlotActive, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

// Appointments

const appointmentColumns = `id, client_id, dependent_id, doctor_id, slot_id, specialty, state, created_at, updated_at`

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetLiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1
	`, slotID)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, client_id, dependent_id, doctor_id, slot_id, specialty, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, a.ID, a.ClientID, a.DependentID, a.DoctorID, a.SlotID, a.Specialty, a.State)
	if err != nil {
		// appointments has UNIQUE(slot_id): the live table only holds
		// pending/paid rows, so uniqueness over slot_id is the exclusivity
		// invariant enforced at the storage layer.
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) SetAppointmentState(ctx context.Context, id uuid.UUID, from, to AppointmentState) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET state = $2,
		    updated_at = now()
		WHERE id = $1
		  AND state = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

const detailSelect = `
	SELECT a.id, a.client_id, a.dependent_id, a.doctor_id, a.slot_id, a.specialty, a.state, a.created_at, a.updated_at,
	       c.name,
	       COALESCE(dep.name, c.name),
	       d.name,
	       s.start_at,
	       s.price,
	       p.id
	FROM appointments a
	JOIN users c ON c.id = a.client_id
	JOIN users d ON d.id = a.doctor_id
	JOIN time_slots s ON s.id = a.slot_id
	LEFT JOIN dependents dep ON dep.id = a.dependent_id
	LEFT JOIN payments p ON p.appointment_id = a.id
`

func scanDetail(rows pgx.Rows) (*AppointmentDetail, error) {
	var d AppointmentDetail
	err := rows.Scan(
		&d.ID, &d.ClientID, &d.DependentID, &d.DoctorID, &d.SlotID, &d.Specialty, &d.State, &d.CreatedAt, &d.UpdatedAt,
		&d.ClientName,
		&d.PatientName,
		&d.DoctorName,
		&d.StartAt,
		&d.Price,
		&d.PaymentID,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) listDetails(ctx context.Context, sql string, args ...any) ([]AppointmentDetail, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListLiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listDetails(ctx, detailSelect+`
		WHERE a.client_id = $1
		ORDER BY CASE a.state WHEN 'payment_pending' THEN 1 ELSE 2 END,
		         s.start_at ASC
	`, clientID)
}

func (r *PgRepository) ListPaidAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AppointmentDetail, error) {
	return r.listDetails(ctx, detailSelect+`
		WHERE a.doctor_id = $1
		  AND a.state = 'paid'
		ORDER BY s.start_at ASC
	`, doctorID)
}

func (r *PgRepository) CountLiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE client_id = $1
	`, clientID).Scan(&n)
	return n, err
}

func (r *PgRepository) slotIDSet(ctx context.Context, sql string, args ...any) (map[uuid.UUID]struct{}, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (r *PgRepository) LiveSlotIDs(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[uuid.UUID]struct{}, error) {
	return r.slotIDSet(ctx, `
		SELECT a.slot_id
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.doctor_id = $1
		  AND s.start_at >= $2
		  AND s.start_at < $3
	`, doctorID, from, to)
}

func (r *PgRepository) CancelledSlotIDs(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[uuid.UUID]struct{}, error) {
	return r.slotIDSet(ctx, `
		SELECT DISTINCT h.slot_id
		FROM historical_appointments h
		JOIN time_slots s ON s.id = h.slot_id
		WHERE h.doctor_id = $1
		  AND h.outcome = 'cancelled'
		  AND s.start_at >= $2
		  AND s.start_at < $3
	`, doctorID, from, to)
}

// Payments

const paymentColumns = `id, appointment_id, amount, state, created_at, paid_at, method, receipt_type, tax_id`

func (r *PgRepository) CreatePayment(ctx context.Context, p *Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, appointment_id, amount, state, created_at, paid_at, method, receipt_type, tax_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.AppointmentID, p.Amount, p.State, p.CreatedAt, p.PaidAt, p.Method, p.ReceiptType, p.TaxID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) GetPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) UpdateReceiptPreference(ctx context.Context, id uuid.UUID, rt ReceiptType, taxID *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET receipt_type = $2,
		    tax_id = $3
		WHERE id = $1
	`, id, rt, taxID)
	if err != nil {
		return fmt.Errorf("update receipt preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PgRepository) MarkPaymentPaid(ctx context.Context, id uuid.UUID, method string, paidAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET state = $2,
		    method = $3,
		    paid_at = $4
		WHERE id = $1
		  AND state = $5
	`, id, PaymentPaid, method, paidAt, PaymentPending)
	if err != nil {
		return fmt.Errorf("mark payment paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PgRepository) DeletePaymentsForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE appointment_id = $1`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) CountPendingPaymentsByClient(ctx context.Context, clientID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*)
		FROM payments p
		JOIN appointments a ON a.id = p.appointment_id
		WHERE a.client_id = $1
		  AND p.state = $2
	`, clientID, PaymentPending).Scan(&n)
	return n, err
}

// History

func (r *PgRepository) InsertHistoricalAppointment(ctx context.Context, h *HistoricalAppointment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO historical_appointments (appointment_id, client_id, dependent_id, doctor_id, slot_id, specialty, outcome, reason, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, h.AppointmentID, h.ClientID, h.DependentID, h.DoctorID, h.SlotID, h.Specialty, h.Outcome, h.Reason, h.ArchivedAt)
	if err != nil {
		return fmt.Errorf("insert historical appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertHistoricalPayment(ctx context.Context, h *HistoricalPayment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO historical_payments (payment_id, appointment_id, amount, state, created_at, paid_at, method, receipt_type, tax_id, moved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, h.PaymentID, h.AppointmentID, h.Amount, h.State, h.CreatedAt, h.PaidAt, h.Method, h.ReceiptType, h.TaxID, h.MovedAt)
	if err != nil {
		return fmt.Errorf("insert historical payment: %w", err)
	}
	return nil
}

const historySelect = `
	SELECT h.appointment_id, h.client_id, h.dependent_id, h.doctor_id, h.slot_id, h.specialty, h.outcome, h.reason, h.archived_at,
	       c.name,
	       COALESCE(dep.name, c.name),
	       d.name,
	       s.start_at,
	       s.price,
	       p.payment_id
	FROM historical_appointments h
	JOIN users c ON c.id = h.client_id
	JOIN users d ON d.id = h.doctor_id
	JOIN time_slots s ON s.id = h.slot_id
	LEFT JOIN dependents dep ON dep.id = h.dependent_id
	LEFT JOIN historical_payments p ON p.appointment_id = h.appointment_id
`

func (r *PgRepository) listHistory(ctx context.Context, sql string, args ...any) ([]HistoricalDetail, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoricalDetail
	for rows.Next() {
		var d HistoricalDetail
		err := rows.Scan(
			&d.AppointmentID, &d.ClientID, &d.DependentID, &d.DoctorID, &d.SlotID, &d.Specialty, &d.Outcome, &d.Reason, &d.ArchivedAt,
			&d.ClientName,
			&d.PatientName,
			&d.DoctorName,
			&d.StartAt,
			&d.Price,
			&d.PaymentID,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListHistoryByClient(ctx context.Context, clientID uuid.UUID, outcome *Outcome) ([]HistoricalDetail, error) {
	if outcome != nil {
		return r.listHistory(ctx, historySelect+`
			WHERE h.client_id = $1 AND h.outcome = $2
			ORDER BY s.start_at ASC
		`, clientID, *outcome)
	}
	return r.listHistory(ctx, historySelect+`
		WHERE h.client_id = $1
		ORDER BY s.start_at ASC
	`, clientID)
}

func (r *PgRepository) ListHistoryByDoctor(ctx context.Context, doctorID uuid.UUID, outcome *Outcome) ([]HistoricalDetail, error) {
	if outcome != nil {
		return r.listHistory(ctx, historySelect+`
			WHERE h.doctor_id = $1 AND h.outcome = $2
			ORDER BY s.start_at ASC
		`, doctorID, *outcome)
	}
	return r.listHistory(ctx, historySelect+`
		WHERE h.doctor_id = $1
		ORDER BY s.start_at ASC
	`, doctorID)
}

// Sweeper

func (r *PgRepository) FindExpiredPending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.client_id, a.dependent_id, a.doctor_id, a.slot_id, a.specialty, a.state, a.created_at, a.updated_at
		FROM appointments a
		JOIN payments p ON p.appointment_id = a.id
		WHERE a.state = $1
		  AND p.state = $2
		  AND p.created_at <= $3
	`, StatusPaymentPending, PaymentPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// Notification data

func (r *PgRepository) GetBookingNotification(ctx context.Context, appointmentID uuid.UUID) (*NotificationData, error) {
	row := r.db.QueryRow(ctx, `
		SELECT a.id,
		       c.name,
		       c.email,
		       COALESCE(dep.name, c.name),
		       d.name,
		       a.specialty,
		       s.start_at,
		       s.price
		FROM appointments a
		JOIN users c ON c.id = a.client_id
		JOIN users d ON d.id = a.doctor_id
		JOIN time_slots s ON s.id = a.slot_id
		LEFT JOIN dependents dep ON dep.id = a.dependent_id
		WHERE a.id = $1
	`, appointmentID)

	var n NotificationData
	err := row.Scan(
		&n.AppointmentID,
		&n.ClientName,
		&n.ClientEmail,
		&n.PatientName,
		&n.DoctorName,
		&n.Specialty,
		&n.StartAt,
		&n.Price,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &n, nil
}
