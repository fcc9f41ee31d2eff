package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// horizon bounds week-view queries; the schedule has no slots that far out.
var horizon = time.Date(2100, 12, 31, 0, 0, 0, 0, time.UTC)

// SlotService owns doctor time-slot records and the availability views.
type SlotService struct {
	repo   Repository
	margin time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func NewSlotService(repo Repository, margin time.Duration, log zerolog.Logger) *SlotService {
	return &SlotService{
		repo:   repo,
		margin: margin,
		log:    log.With().Str("component", "slots").Logger(),
		now:    time.Now,
	}
}

// parseSlotStart combines a calendar date and a wall-clock time into the
// slot's start instant, in server-local time.
func parseSlotStart(date, startTime string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	t, err := time.Parse(timeLayout, startTime)
	if err != nil {
		if t, err = time.Parse(timeLayout+":05", startTime); err != nil {
			return time.Time{}, fmt.Errorf("%w: time must be HH:MM", ErrInvalidArgument)
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local), nil
}

// CreateSlot registers a new active slot. Doctors are trusted not to overlap
// their own slots; only well-formedness is validated.
func (s *SlotService) CreateSlot(ctx context.Context, doctorID uuid.UUID, date, startTime string, price float64) (*TimeSlot, error) {
	startAt, err := parseSlotStart(date, startTime)
	if err != nil {
		return nil, err
	}
	if price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
	}

	slot := &TimeSlot{
		ID:       uuid.New(),
		DoctorID: doctorID,
		StartAt:  startAt,
		Price:    price,
		State:    SlotActive,
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.log.Info().Str("slot_id", slot.ID.String()).Str("doctor_id", doctorID.String()).
		Time("start_at", startAt).Msg("slot created")
	return slot, nil
}

// RetireSlot removes a slot from future availability without breaking
// historical references. Retiring is irreversible; retiring an absent or
// already-retired slot reports ErrSlotNotFound.
func (s *SlotService) RetireSlot(ctx context.Context, slotID uuid.UUID) error {
	if err := s.repo.RetireSlot(ctx, slotID); err != nil {
		return err
	}
	s.log.Info().Str("slot_id", slotID.String()).Msg("slot retired")
	return nil
}

// ListAvailability returns the doctor's bookable slots for one day.
func (s *SlotService) ListAvailability(ctx context.Context, doctorID uuid.UUID, date string) ([]TimeSlot, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	return s.availableSlots(ctx, doctorID, day, day.AddDate(0, 0, 1))
}

// WeekSchedule is the week-view variant: every bookable slot from the start
// of the requested week onward, plus the week bounds for the calendar UI.
type WeekSchedule struct {
	WeekStart time.Time
	WeekEnd   time.Time
	Slots     []TimeSlot
}

func (s *SlotService) WeekSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*WeekSchedule, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}

	weekStart := day.AddDate(0, 0, -mondayOffset(day.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 6)

	slots, err := s.availableSlots(ctx, doctorID, weekStart, horizon)
	if err != nil {
		return nil, err
	}
	return &WeekSchedule{WeekStart: weekStart, WeekEnd: weekEnd, Slots: slots}, nil
}

func mondayOffset(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d - time.Monday)
}

func (s *SlotService) availableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	slots, err := s.repo.ListActiveSlots(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	live, err := s.repo.LiveSlotIDs(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("live slot ids: %w", err)
	}
	cancelled, err := s.repo.CancelledSlotIDs(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("cancelled slot ids: %w", err)
	}
	return filterAvailable(slots, live, cancelled, s.now(), s.margin), nil
}

// SlotView annotates a slot with its occupancy for the doctor's own listing.
type SlotView struct {
	TimeSlot
	Occupancy string // "available" or "occupied"
}

// DoctorSlots lists the doctor's active, non-elapsed slots with occupancy.
// Slots held by a live appointment show as occupied; the rest follow the
// availability policy.
func (s *SlotService) DoctorSlots(ctx context.Context, doctorID uuid.UUID) ([]SlotView, error) {
	now := s.now()
	from := startOfDay(now)

	slots, err := s.repo.ListActiveSlots(ctx, doctorID, from, horizon)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	live, err := s.repo.LiveSlotIDs(ctx, doctorID, from, horizon)
	if err != nil {
		return nil, fmt.Errorf("live slot ids: %w", err)
	}
	cancelled, err := s.repo.CancelledSlotIDs(ctx, doctorID, from, horizon)
	if err != nil {
		return nil, fmt.Errorf("cancelled slot ids: %w", err)
	}

	views := make([]SlotView, 0, len(slots))
	for _, slot := range slots {
		if _, isLive := live[slot.ID]; isLive {
			views = append(views, SlotView{TimeSlot: slot, Occupancy: "occupied"})
			continue
		}
		_, wasCancelled := cancelled[slot.ID]
		if slotAvailable(slot, now, s.margin, false, wasCancelled) {
			views = append(views, SlotView{TimeSlot: slot, Occupancy: "available"})
		}
	}
	return views, nil
}
