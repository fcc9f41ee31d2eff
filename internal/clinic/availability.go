package clinic

import (
	"time"

	"github.com/google/uuid"
)

// Availability policy. A slot is bookable when:
//
//   - its date has not fully elapsed,
//   - no live (pending or paid) appointment holds it, and
//   - for same-day slots the booking margin is respected: a fresh slot stays
//     bookable only while now < start-margin; a slot freed by a cancellation
//     reappears only once now >= start-margin, so a doctor is never rebooked
//     into a moment that is about to start.
//
// Future-dated cancellations free the slot immediately. The margin is always
// measured against the slot's own start time, never against the cancellation
// time.

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// startOfDay returns midnight of t's day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// slotAvailable applies the policy to a single active slot. wasCancelled
// reports whether the slot's last appointment ended in a cancellation.
func slotAvailable(slot TimeSlot, now time.Time, margin time.Duration, live, wasCancelled bool) bool {
	if live {
		return false
	}
	if slot.StartAt.Before(startOfDay(now)) {
		return false
	}
	if !sameDay(slot.StartAt, now) {
		return true
	}

	lead := slot.StartAt.Add(-margin)
	if wasCancelled {
		return !now.Before(lead)
	}
	return now.Before(lead)
}

// filterAvailable keeps the slots that pass the policy, preserving order.
func filterAvailable(slots []TimeSlot, live, cancelled map[uuid.UUID]struct{}, now time.Time, margin time.Duration) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		_, isLive := live[s.ID]
		_, wasCancelled := cancelled[s.ID]
		if slotAvailable(s, now, margin, isLive, wasCancelled) {
			out = append(out, s)
		}
	}
	return out
}
