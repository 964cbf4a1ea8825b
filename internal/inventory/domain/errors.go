package domain

import "errors"

var (
	// ErrInvalidRequest marks malformed input, rejected before any side effect.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInsufficientStock is a business outcome, not a fault: the requested
	// quantity cannot be covered after exhausting every warehouse.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvariantViolation means a release or finalize would push the ledger
	// negative. It indicates a saga bug and must never be absorbed silently.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrRowNotFound is returned when a (product, warehouse) ledger row does
	// not exist.
	ErrRowNotFound = errors.New("ledger row not found")
)
