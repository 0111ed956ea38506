package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateJob(ctx context.Context, j *models.Job) error {
	const op = "Store.CreateJob"
	query := `
		INSERT INTO jobs(id, pickup_text, dropoff_text, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			passengers, passenger_detail, vehicle_required, vehicle_override, priority, payment_method,
			caller_name, caller_phone, fare_estimate, bidding_window_seconds, created_at, status,
			allocated_driver_id, driver_distance_km, driver_eta_min, coords_fixed, bids_json, uninvited_bid_count)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`

	bidsJSON, err := json.Marshal(j.BidsSnapshot)
	if err != nil {
		return fmt.Errorf("%s: marshal bids snapshot: %w", op, err)
	}

	if _, err := TxorDB(ctx, s.db).Exec(ctx, query,
		j.ID, j.PickupText, j.DropoffText, j.PickupLat, j.PickupLon, j.DropoffLat, j.DropoffLon,
		j.Passengers, j.PassengerDetail, j.VehicleRequired, j.VehicleOverride, j.Priority, j.PaymentMethod,
		j.CallerName, j.CallerPhone, j.FareEstimate, j.BiddingWindowSeconds, j.CreatedAt, j.Status,
		nullString(j.AllocatedDriverID), j.DriverDistanceKm, j.DriverETAMin, j.CoordsFixed, bidsJSON, j.UninvitedBidCount,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	const op = "Store.GetJob"
	query := `
		SELECT id, pickup_text, dropoff_text, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			passengers, passenger_detail, vehicle_required, vehicle_override, priority, payment_method,
			caller_name, caller_phone, fare_estimate, bidding_window_seconds, created_at, status,
			allocated_driver_id, driver_distance_km, driver_eta_min, allocated_at, coords_fixed, bids_json,
			uninvited_bid_count
		FROM jobs WHERE id = $1`

	var j models.Job
	var allocatedDriverID *string
	var allocatedAt *time.Time
	var bidsJSON []byte
	err := TxorDB(ctx, s.db).QueryRow(ctx, query, jobID).Scan(
		&j.ID, &j.PickupText, &j.DropoffText, &j.PickupLat, &j.PickupLon, &j.DropoffLat, &j.DropoffLon,
		&j.Passengers, &j.PassengerDetail, &j.VehicleRequired, &j.VehicleOverride, &j.Priority, &j.PaymentMethod,
		&j.CallerName, &j.CallerPhone, &j.FareEstimate, &j.BiddingWindowSeconds, &j.CreatedAt, &j.Status,
		&allocatedDriverID, &j.DriverDistanceKm, &j.DriverETAMin, &allocatedAt, &j.CoordsFixed, &bidsJSON,
		&j.UninvitedBidCount,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.ErrJobNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if allocatedDriverID != nil {
		j.AllocatedDriverID = *allocatedDriverID
	}
	if allocatedAt != nil {
		j.AllocatedAt = *allocatedAt
	}
	if len(bidsJSON) > 0 {
		if err := json.Unmarshal(bidsJSON, &j.BidsSnapshot); err != nil {
			return nil, fmt.Errorf("%s: unmarshal bids snapshot: %w", op, err)
		}
	}
	return &j, nil
}

// UpdateJobStatus enforces the §4.3 transition table: the current status is
// read first, the move validated against types.CanTransitionJobStatus, and
// the UPDATE itself is conditioned on status still matching what was read
// so a concurrent writer can't race the check (that case also reports
// ErrIllegalTransition rather than silently no-opping).
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status types.JobStatus) error {
	const op = "Store.UpdateJobStatus"
	q := TxorDB(ctx, s.db)

	var current types.JobStatus
	if err := q.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrJobNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: select current status: %w", op, err))
	}
	if !types.CanTransitionJobStatus(current, status) {
		return types.ErrIllegalTransition
	}

	tag, err := q.Exec(ctx, `UPDATE jobs SET status = $1 WHERE id = $2 AND status = $3`, status, jobID, current)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrIllegalTransition
	}
	return nil
}

func (s *Store) AppendBid(ctx context.Context, jobID string, bid models.Bid) error {
	const op = "Store.AppendBid"
	query := `
		INSERT INTO bids(job_id, driver_id, driver_lat, driver_lon, distance_km, completed_jobs_snapshot, uninvited, bid_ts)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (job_id, driver_id) DO NOTHING`

	tag, err := TxorDB(ctx, s.db).Exec(ctx, query,
		jobID, bid.DriverID, bid.DriverLat, bid.DriverLon, bid.DistanceKm, bid.CompletedJobsSnapshot, bid.Uninvited, bid.BidTS)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDuplicateBid
	}
	return nil
}

func (s *Store) ListBids(ctx context.Context, jobID string) ([]models.Bid, error) {
	const op = "Store.ListBids"
	rows, err := TxorDB(ctx, s.db).Query(ctx, `
		SELECT job_id, driver_id, driver_lat, driver_lon, distance_km, completed_jobs_snapshot, uninvited, bid_ts
		FROM bids WHERE job_id = $1 ORDER BY bid_ts ASC`, jobID)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.JobID, &b.DriverID, &b.DriverLat, &b.DriverLon, &b.DistanceKm,
			&b.CompletedJobsSnapshot, &b.Uninvited, &b.BidTS); err != nil {
			ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
			return nil, wrap.Error(ctx, fmt.Errorf("%s: scan: %w", op, err))
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) SnapshotBidsToJob(ctx context.Context, jobID string, snapshot []models.BidSnapshot, uninvited int) error {
	const op = "Store.SnapshotBidsToJob"
	bidsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}
	tag, err := TxorDB(ctx, s.db).Exec(ctx,
		`UPDATE jobs SET bids_json = $1, uninvited_bid_count = $2 WHERE id = $3`, bidsJSON, uninvited, jobID)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrJobNotFound
	}
	return nil
}

func (s *Store) AllocateJob(ctx context.Context, jobID, driverID string, distanceKm float64, etaMin int) error {
	const op = "Store.AllocateJob"
	tag, err := TxorDB(ctx, s.db).Exec(ctx, `
		UPDATE jobs SET status = $1, allocated_driver_id = $2, driver_distance_km = $3, driver_eta_min = $4,
			allocated_at = now()
		WHERE id = $5`, types.JobAllocated, driverID, distanceKm, etaMin, jobID)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrJobNotFound
	}

	if _, err := TxorDB(ctx, s.db).Exec(ctx,
		`UPDATE drivers SET status = $1, status_changed_at = now() WHERE id = $2`, types.DriverOnJob, driverID,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: update driver: %w", op, err))
	}
	return nil
}

func (s *Store) ListJobsByStatus(ctx context.Context, status types.JobStatus) ([]*models.Job, error) {
	const op = "Store.ListJobsByStatus"
	rows, err := TxorDB(ctx, s.db).Query(ctx, `SELECT id FROM jobs WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
