package domain

import "errors"

// Storage-level sentinels. Adapters translate driver errors into these so the
// service layer can react without knowing the backend.
var (
	ErrUniqueViolation      = errors.New("unique constraint violation")
	ErrSerializationFailure = errors.New("serialization failure")
)
