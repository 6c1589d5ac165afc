package db

import (
	"context"
	"time"

	"sitescore/internal/types"
)

// MaxListLimit caps ListRecent.
const MaxListLimit = 100

// ReportRepository provides data access for the reports table.
type ReportRepository struct {
	db DBTX
}

// NewReportRepository creates a ReportRepository backed by the given
// connection (pool or transaction).
func NewReportRepository(db DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a report record. A zero CreatedAt lets the database stamp
// the row.
func (r *ReportRepository) Create(ctx context.Context, rec *types.ReportRecord) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO reports (id, latitude, longitude, link, storage_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
		 RETURNING created_at`,
		rec.ID,
		rec.Lat,
		rec.Lon,
		rec.Link,
		rec.StorageKey,
		nilIfZeroTime(rec.CreatedAt),
	)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record report", err)
	}
	return nil
}

// ListRecent returns up to limit reports, newest first. The limit is clamped
// to [1, MaxListLimit].
func (r *ReportRepository) ListRecent(ctx context.Context, limit int) ([]types.ReportRecord, error) {
	limit = min(max(limit, 1), MaxListLimit)

	rows, err := r.db.Query(ctx,
		`SELECT id, latitude, longitude, link, storage_key, created_at
		 FROM reports
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reports", err)
	}
	defer rows.Close()

	var out []types.ReportRecord
	for rows.Next() {
		var rec types.ReportRecord
		if err := rows.Scan(&rec.ID, &rec.Lat, &rec.Lon, &rec.Link, &rec.StorageKey, &rec.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan report", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list reports", err)
	}
	return out, nil
}

// DeleteOlderThan removes reports created before cutoff and returns their
// storage keys so the caller can delete the artifacts.
func (r *ReportRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM reports WHERE created_at < $1 RETURNING storage_key`,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire reports", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan expired report", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire reports", err)
	}
	return keys, nil
}

func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
