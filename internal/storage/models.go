package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message delivery states.
const (
	StatusPending = "pending"
	StatusAcked   = "acked"
	StatusNacked  = "nacked"
)

// Item is one entry of the local storage key space.
type Item struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Message is an outbound app message and its delivery outcome.
type Message struct {
	ID          string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PayloadJSON string
	Status      string // "pending", "acked", "nacked"
	LastError   string
}
