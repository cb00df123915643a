package services

import "github.com/google/uuid"

// IDGenerator mints identifiers for new entities.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

// NewUUIDGenerator returns a generator producing random UUIDv4 strings.
func NewUUIDGenerator() IDGenerator { return uuidGenerator{} }

func (uuidGenerator) NewID() string { return uuid.NewString() }

// IDFunc adapts a function to IDGenerator.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }
