package errs

import (
	"errors"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrBookNotFound   = errors.New("book not found")
	ErrRecordNotFound = errors.New("borrow record not found")

	ErrOutOfStock      = errors.New("out of stock")
	ErrAlreadyBorrowed = errors.New("user already has this book borrowed")
	ErrAlreadyReturned = errors.New("book has already been returned")

	ErrInvalidDueDate   = errors.New("invalid due date format")
	ErrDueDateNotFuture = errors.New("due date must be in the future")

	// ErrConcurrencyConflict surfaces a detected concurrent stock/record
	// conflict the transaction could not commit over; callers may retry.
	ErrConcurrencyConflict = errors.New("concurrent borrow conflict")
)
