// Package models defines the data types persisted by the local cache and
// exchanged with the remote SRP service.
package models

import (
	"fmt"
	"time"

	"github.com/bantaypresyo/srpsync/common"
)

// UserSummary identifies the admin that created a record. It is present only
// on server responses; the local cache does not persist it.
type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PriceRecord is a cached SRP price record mirrored from the server.
//
// The cache is a passive mirror: IsActive is authoritative only as asserted
// by the server, and the at-most-one-active-per-overlapping-range invariant
// is enforced server-side, never recomputed locally.
type PriceRecord struct {
	// ID is the server-assigned identifier.
	ID string

	// Price is the suggested retail price. Always non-negative.
	Price float64

	// Reference is the official reference string (e.g. "DA-MO-2026-001").
	Reference string

	// StartDate is the UTC instant the price takes effect.
	StartDate time.Time

	// EndDate, when set, is the UTC instant the price stops applying.
	// Must be >= StartDate.
	EndDate *time.Time

	// IsActive mirrors the server's active flag.
	IsActive bool

	// CreatedAt is the server-side creation time in UTC.
	CreatedAt time.Time

	// CreatedBy is the creator summary; absent in cache-only contexts.
	CreatedBy *UserSummary

	// LastSyncedAt records when this row was last confirmed against the
	// server. Local bookkeeping only.
	LastSyncedAt *time.Time
}

// RecordPage is one page of records plus pagination metadata.
type RecordPage struct {
	Items      []PriceRecord
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// CreateRecordRequest is the client-side shape of a record creation.
// The server assigns the identifier and enforces cascade invariants
// (e.g. auto-closing the previous active record).
type CreateRecordRequest struct {
	Price     float64    `json:"price"`
	Reference string     `json:"reference"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`

	// ClientRef is a client-generated idempotency stamp so a queued write
	// replayed after a crash cannot double-apply server-side.
	ClientRef string `json:"clientRef,omitempty"`
}

// Validate checks the request shape locally, independent of connectivity.
func (r CreateRecordRequest) Validate() error {
	if r.Reference == "" {
		return fmt.Errorf("%w: reference must not be empty", common.ErrValidation)
	}
	if r.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", common.ErrValidation)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", common.ErrValidation)
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("%w: end date must not precede start date", common.ErrValidation)
	}
	return nil
}

// CreateResult is the outcome of RecordService.Create.
//
// When the write went through online, Record holds the canonical record as
// returned by the server. When the write was queued offline, Queued is true
// and Record is nil: the server has not assigned an identifier yet and the
// client never fabricates one.
type CreateResult struct {
	Record     *PriceRecord
	Queued     bool
	MutationID int64
}
