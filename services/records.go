// Package services composes the remote gateway and the local cache into the
// engine's orchestration units: the record repository (read/write policy),
// the sync coordinator (queue drain + reconciliation), and the realtime
// listener.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/bantaypresyo/srpsync/common"
	"github.com/bantaypresyo/srpsync/gateway"
	"github.com/bantaypresyo/srpsync/logging"
	"github.com/bantaypresyo/srpsync/models"
	"github.com/bantaypresyo/srpsync/repositories/metadata"
	"github.com/bantaypresyo/srpsync/repositories/mutations"
	"github.com/bantaypresyo/srpsync/repositories/records"
)

// Gateway is the remote call boundary consumed by the services.
type Gateway interface {
	Execute(ctx context.Context, verb, path string, payload json.RawMessage) (json.RawMessage, error)
}

// Connectivity exposes the monitor's published reachability state.
type Connectivity interface {
	Online() bool
}

const (
	// RecordsPath is the collection endpoint for SRP price records.
	RecordsPath = "/api/v1/srp-records"

	// ActiveRecordPath resolves the currently active record.
	ActiveRecordPath = RecordsPath + "/active"
)

const defaultPageSize = 20

// RecordService is the façade over gateway + cache implementing the read
// policy (server-first, cache-fallback) and the write policy (online-direct,
// offline-queue).
type RecordService struct {
	gw       Gateway
	records  records.Repository
	queue    mutations.Repository
	meta     metadata.Repository
	online   Connectivity
	log      logging.Logger
	pageSize int
}

// NewRecordService wires the record repository façade.
func NewRecordService(gw Gateway, recs records.Repository, queue mutations.Repository,
	meta metadata.Repository, online Connectivity, pageSize int, log logging.Logger) *RecordService {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &RecordService{
		gw:       gw,
		records:  recs,
		queue:    queue,
		meta:     meta,
		online:   online,
		log:      log,
		pageSize: pageSize,
	}
}

// decodeRecord unwraps a single record from envelope data. A null or empty
// body is a valid "no record" result.
func decodeRecord(data json.RawMessage) (*models.PriceRecord, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var w models.RecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}
	rec := w.ToRecord()
	return &rec, nil
}

// GetActive returns the currently active price record.
//
// Online, the server is consulted first and the cache refreshed on success.
// Absence of an active record is valid domain state and yields (nil, nil),
// never an error. Any other remote failure falls back to the cache.
func (s *RecordService) GetActive(ctx context.Context) (*models.PriceRecord, error) {
	if s.online.Online() {
		data, err := s.gw.Execute(ctx, http.MethodGet, ActiveRecordPath, nil)
		switch {
		case err == nil:
			rec, derr := decodeRecord(data)
			if derr == nil {
				if rec == nil {
					return nil, nil
				}
				if uerr := s.records.Upsert(ctx, rec); uerr != nil {
					s.log.Error(ctx, "failed to refresh cached record", "id", rec.ID, "error", uerr)
				}
				return rec, nil
			}
			s.log.Warn(ctx, "undecodable active-record response, using cache", "error", derr)
		case gateway.IsNotFound(err):
			return nil, nil
		default:
			s.log.Warn(ctx, "active-record read failed, using cache", "error", err)
		}
	}

	rec, err := s.records.GetActive(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID returns one record, or (nil, nil) when it does not exist.
func (s *RecordService) GetByID(ctx context.Context, id string) (*models.PriceRecord, error) {
	if s.online.Online() {
		data, err := s.gw.Execute(ctx, http.MethodGet, RecordsPath+"/"+id, nil)
		switch {
		case err == nil:
			rec, derr := decodeRecord(data)
			if derr == nil {
				if rec != nil {
					if uerr := s.records.Upsert(ctx, rec); uerr != nil {
						s.log.Error(ctx, "failed to refresh cached record", "id", rec.ID, "error", uerr)
					}
				}
				return rec, nil
			}
			s.log.Warn(ctx, "undecodable record response, using cache", "id", id, "error", derr)
		case gateway.IsNotFound(err):
			return nil, nil
		default:
			s.log.Warn(ctx, "record read failed, using cache", "id", id, "error", err)
		}
	}

	rec, err := s.records.GetByID(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetList returns one page of records, newest first.
//
// Online pages come from the server and refresh the cache. Offline (or on a
// fallback) the page is sliced locally out of the full cached, sorted set,
// with totalPages = ceil(total/pageSize), minimum 1. An offline read against
// a never-populated cache yields common.ErrCacheEmpty so callers can degrade
// gracefully.
func (s *RecordService) GetList(ctx context.Context, page, pageSize int) (*models.RecordPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	if s.online.Online() {
		path := fmt.Sprintf("%s?page=%d&pageSize=%d", RecordsPath, page, pageSize)
		data, err := s.gw.Execute(ctx, http.MethodGet, path, nil)
		switch {
		case err == nil:
			result, derr := s.applyListResponse(ctx, data, page, pageSize)
			if derr == nil {
				return result, nil
			}
			s.log.Warn(ctx, "undecodable list response, using cache", "error", derr)
		case gateway.IsNotFound(err):
			return &models.RecordPage{Page: page, PageSize: pageSize, TotalPages: 1}, nil
		default:
			s.log.Warn(ctx, "list read failed, using cache", "error", err)
		}
	}

	return s.listFromCache(ctx, page, pageSize)
}

func (s *RecordService) applyListResponse(ctx context.Context, data json.RawMessage, page, pageSize int) (*models.RecordPage, error) {
	var wire models.RecordListWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode record list: %w", err)
	}

	recs := make([]models.PriceRecord, 0, len(wire.Items))
	for _, item := range wire.Items {
		recs = append(recs, item.ToRecord())
	}

	if err := s.records.BulkUpsert(ctx, recs); err != nil {
		s.log.Error(ctx, "failed to refresh cached page", "error", err)
	}

	result := &models.RecordPage{
		Items:      recs,
		Page:       wire.Page,
		PageSize:   wire.PageSize,
		Total:      wire.Total,
		TotalPages: wire.TotalPages,
	}
	if result.Page == 0 {
		result.Page = page
	}
	if result.PageSize == 0 {
		result.PageSize = pageSize
	}
	if result.TotalPages < 1 {
		result.TotalPages = 1
	}
	return result, nil
}

func (s *RecordService) listFromCache(ctx context.Context, page, pageSize int) (*models.RecordPage, error) {
	all, err := s.records.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if len(all) == 0 {
		lastSync, merr := s.meta.Get(ctx, metadata.KeyLastSync)
		if merr == nil && lastSync == "" {
			return nil, fmt.Errorf("%w: cache never populated", common.ErrCacheEmpty)
		}
	}

	total := len(all)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	startIdx := (page - 1) * pageSize
	if startIdx > total {
		startIdx = total
	}
	endIdx := startIdx + pageSize
	if endIdx > total {
		endIdx = total
	}

	return &models.RecordPage{
		Items:      all[startIdx:endIdx],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// Create submits a new price record.
//
// Validation runs locally regardless of connectivity. Online, the write goes
// straight to the server and any failure is propagated: writes are never
// absorbed by a fallback. Offline, the request is appended to the durable
// pending queue and the result carries no canonical record, since only the
// server assigns identifiers and enforces cascade invariants.
func (s *RecordService) Create(ctx context.Context, req models.CreateRecordRequest) (*models.CreateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.ClientRef == "" {
		req.ClientRef = uuid.NewString()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode create request: %w", err)
	}

	if s.online.Online() {
		data, err := s.gw.Execute(ctx, http.MethodPost, RecordsPath, payload)
		if err != nil {
			return nil, err
		}
		rec, derr := decodeRecord(data)
		if derr != nil {
			return nil, derr
		}
		if rec == nil {
			return nil, fmt.Errorf("server returned no record for create")
		}
		if uerr := s.records.Upsert(ctx, rec); uerr != nil {
			s.log.Error(ctx, "failed to cache created record", "id", rec.ID, "error", uerr)
		}
		return &models.CreateResult{Record: rec}, nil
	}

	id, err := s.queue.Enqueue(ctx, RecordsPath, http.MethodPost, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to queue offline write: %w", err)
	}
	s.log.Info(ctx, "write queued for sync", "mutation_id", id, "reference", req.Reference)
	return &models.CreateResult{Queued: true, MutationID: id}, nil
}

// PendingWrites lists queued writes awaiting sync followed by failed ones,
// so a queued-but-unconfirmed write stays distinguishable and inspectable.
func (s *RecordService) PendingWrites(ctx context.Context) ([]models.PendingMutation, error) {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := s.queue.ListFailed(ctx)
	if err != nil {
		return nil, err
	}
	return append(pending, failed...), nil
}
