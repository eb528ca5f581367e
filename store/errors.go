package store

import "errors"

var (
	// ErrForestLocked is returned when another mutation holds a lock on
	// one of the requested forests, or when a fencing check fails at
	// commit because a stale lock was stolen.
	ErrForestLocked = errors.New("espalier: forest is locked by another mutation")

	// ErrMutationTooLarge is returned when a mutation would write more
	// rows than one DynamoDB transaction can carry. Nothing is written.
	// Oversize deletes do not hit this: they are tombstoned and finished
	// by the stream handler.
	ErrMutationTooLarge = errors.New("espalier: mutation exceeds the transactional item limit")
)
