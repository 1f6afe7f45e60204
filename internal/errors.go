package internal

import "errors"

var (
	ErrEmptyReference = errors.New("reference data is empty")
	ErrSectorBounds   = errors.New("sector address out of range")
	ErrShortSector    = errors.New("short sector read")
	ErrNonSequential  = errors.New("sector sink requires sequential writes")
	ErrNoSession      = errors.New("session not found")
)
