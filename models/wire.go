package models

import (
	"encoding/json"
	"time"
)

// Envelope is the remote service's response wrapper:
// { "data": T|null, "errors": [{field?, message}] }.
// A non-empty errors array indicates failure regardless of HTTP status.
type Envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []WireError     `json:"errors"`
}

// WireError is one structured error item from the remote envelope.
type WireError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// RecordWire is the JSON wire shape of a price record, shared by REST
// responses and realtime push payloads.
type RecordWire struct {
	ID        string       `json:"id"`
	Price     float64      `json:"price"`
	Reference string       `json:"reference"`
	StartDate time.Time    `json:"startDate"`
	EndDate   *time.Time   `json:"endDate,omitempty"`
	IsActive  bool         `json:"isActive"`
	CreatedAt time.Time    `json:"createdAt"`
	CreatedBy *UserSummary `json:"createdBy,omitempty"`
}

// ToRecord converts the wire shape into the cache model. Timestamps are
// normalized to UTC so cache ordering does not depend on producer zones.
func (w RecordWire) ToRecord() PriceRecord {
	rec := PriceRecord{
		ID:        w.ID,
		Price:     w.Price,
		Reference: w.Reference,
		StartDate: w.StartDate.UTC(),
		IsActive:  w.IsActive,
		CreatedAt: w.CreatedAt.UTC(),
		CreatedBy: w.CreatedBy,
	}
	if w.EndDate != nil {
		e := w.EndDate.UTC()
		rec.EndDate = &e
	}
	return rec
}

// RecordListWire is the wire shape of a paginated record listing.
type RecordListWire struct {
	Items      []RecordWire `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	Total      int          `json:"total"`
	TotalPages int          `json:"totalPages"`
}
