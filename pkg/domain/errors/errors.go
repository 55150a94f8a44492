package errors

import "errors"

var (
	// requested record is not found.
	ErrMissing = errors.New("missing")

	// requested record is found, more than expected.
	ErrTooMuch = errors.New("too much")

	// the record conflicts with another one (unique or foreign key constraint).
	ErrConflict = errors.New("conflict")

	// generic component cannot determine the concrete types it is specialized for.
	//
	// This is a wiring failure. It is returned from constructors and never from operations.
	ErrTypeResolution = errors.New("type resolution failed")

	// operation of the unspecialized (untyped) store is invoked.
	ErrNotImplemented = errors.New("not implemented: store should be specialized with entity type")

	// DTOs in a batch share one identity and the batch rejects such duplication.
	ErrDuplicateIdentity = errors.New("duplicated identity in batch")

	// read-write transactional scope is requested while a read-only transaction is in progress.
	ErrReadOnlyScope = errors.New("read-write scope in read-only transaction")
)
