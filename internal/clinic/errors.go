package clinic

import "errors"

// Sentinel errors returned by services and repositories. Handlers map them to
// the error taxonomy: validation, not_found, conflict, forbidden, internal.
var (
	// ErrInvalidArgument wraps caller-facing validation failures; the wrapping
	// message carries the detail.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrUserNotFound        = errors.New("user not found")

	// ErrSlotUnavailable means the slot is retired or otherwise not bookable.
	ErrSlotUnavailable = errors.New("slot is not available")

	// ErrSlotTaken means another live appointment already holds the slot.
	ErrSlotTaken = errors.New("slot already has a live appointment")

	// ErrSlotBeingBooked means a concurrent booking holds the slot lock.
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

	// ErrPaymentExists means the appointment already has its payment row.
	ErrPaymentExists = errors.New("appointment already has a payment")

	// ErrPaymentNotPending is returned for operations only allowed before
	// settlement, such as changing the receipt preference.
	ErrPaymentNotPending = errors.New("payment is not pending")

	// ErrNotOwner means the acting client or doctor does not own the record.
	ErrNotOwner = errors.New("appointment does not belong to requester")
)
