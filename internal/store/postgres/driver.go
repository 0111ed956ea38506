package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/fleetcore/dispatch/internal/store"
	"github.com/jackc/pgx/v5"
)

func (s *Store) UpsertDriver(ctx context.Context, d *models.Driver) error {
	const op = "Store.UpsertDriver"
	query := `
		INSERT INTO drivers(id, name, vehicle_class, status, api_key_hash, h3_cell,
			lat, lon, heading, gps_accuracy_m, location_ts, spoof_risk, status_changed_at, last_job_completed_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			vehicle_class = EXCLUDED.vehicle_class,
			status = EXCLUDED.status,
			api_key_hash = EXCLUDED.api_key_hash,
			h3_cell = EXCLUDED.h3_cell,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			heading = EXCLUDED.heading,
			gps_accuracy_m = EXCLUDED.gps_accuracy_m,
			location_ts = EXCLUDED.location_ts,
			status_changed_at = EXCLUDED.status_changed_at`

	if _, err := TxorDB(ctx, s.db).Exec(ctx, query,
		d.ID, d.Name, d.VehicleClass, d.Status, d.APIKeyHash, d.H3Cell,
		d.Lat, d.Lon, d.Heading, d.GPSAccuracyM, d.LocationTS, d.SpoofRisk, d.StatusChangedAt, d.LastJobCompletedAt,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	if _, err := TxorDB(ctx, s.db).Exec(ctx,
		`INSERT INTO driver_stats(driver_id, completed_jobs, cancelled_jobs, no_show_cancels, accept_rate, avg_rating, spoof_streak)
		 VALUES($1,0,0,0,0,0,0) ON CONFLICT (driver_id) DO NOTHING`, d.ID,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: seed stats: %w", op, err))
	}

	return nil
}

func (s *Store) GetDriver(ctx context.Context, driverID string) (*models.Driver, error) {
	const op = "Store.GetDriver"
	query := `
		SELECT id, name, vehicle_class, status, api_key_hash, h3_cell,
			lat, lon, heading, gps_accuracy_m, location_ts, spoof_risk, status_changed_at, last_job_completed_at
		FROM drivers WHERE id = $1`

	var d models.Driver
	err := TxorDB(ctx, s.db).QueryRow(ctx, query, driverID).Scan(
		&d.ID, &d.Name, &d.VehicleClass, &d.Status, &d.APIKeyHash, &d.H3Cell,
		&d.Lat, &d.Lon, &d.Heading, &d.GPSAccuracyM, &d.LocationTS, &d.SpoofRisk, &d.StatusChangedAt, &d.LastJobCompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.ErrDriverNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return &d, nil
}

func (s *Store) ListDrivers(ctx context.Context, filter store.DriverFilter) ([]*models.Driver, error) {
	const op = "Store.ListDrivers"

	query := `
		SELECT id, name, vehicle_class, status, api_key_hash, h3_cell,
			lat, lon, heading, gps_accuracy_m, location_ts, spoof_risk, status_changed_at, last_job_completed_at
		FROM drivers WHERE 1=1`
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.VehicleClass != nil {
		args = append(args, *filter.VehicleClass)
		query += fmt.Sprintf(" AND vehicle_class = $%d", len(args))
	}
	if len(filter.CellIDs) > 0 {
		args = append(args, filter.CellIDs)
		query += fmt.Sprintf(" AND h3_cell = ANY($%d)", len(args))
	}
	query += " ORDER BY id"

	rows, err := TxorDB(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []*models.Driver
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(
			&d.ID, &d.Name, &d.VehicleClass, &d.Status, &d.APIKeyHash, &d.H3Cell,
			&d.Lat, &d.Lon, &d.Heading, &d.GPSAccuracyM, &d.LocationTS, &d.SpoofRisk, &d.StatusChangedAt, &d.LastJobCompletedAt,
		); err != nil {
			ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
			return nil, wrap.Error(ctx, fmt.Errorf("%s: scan: %w", op, err))
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return out, nil
}

func (s *Store) SetDriverStatus(ctx context.Context, driverID string, status types.DriverStatus) error {
	const op = "Store.SetDriverStatus"
	tag, err := TxorDB(ctx, s.db).Exec(ctx,
		`UPDATE drivers SET status = $1, status_changed_at = now() WHERE id = $2`, status, driverID)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}

func (s *Store) GetDriverStats(ctx context.Context, driverID string) (models.DriverStats, error) {
	const op = "Store.GetDriverStats"
	var st models.DriverStats
	err := TxorDB(ctx, s.db).QueryRow(ctx,
		`SELECT driver_id, completed_jobs, cancelled_jobs, no_show_cancels, accept_rate, avg_rating
		 FROM driver_stats WHERE driver_id = $1`, driverID,
	).Scan(&st.DriverID, &st.CompletedJobs, &st.CancelledJobs, &st.NoShowCancels, &st.AcceptRate, &st.AvgRating)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.DriverStats{}, types.ErrDriverNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return models.DriverStats{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return st, nil
}

func (s *Store) RecordJobCompleted(ctx context.Context, driverID string) error {
	const op = "Store.RecordJobCompleted"
	tag, err := TxorDB(ctx, s.db).Exec(ctx,
		`UPDATE driver_stats SET completed_jobs = completed_jobs + 1 WHERE driver_id = $1`, driverID)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	_, err = TxorDB(ctx, s.db).Exec(ctx,
		`UPDATE drivers SET last_job_completed_at = now() WHERE id = $1`, driverID)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: touch driver: %w", op, err))
	}
	return nil
}

func (s *Store) RecordJobCancelled(ctx context.Context, driverID string, noShow bool) error {
	const op = "Store.RecordJobCancelled"
	column := "cancelled_jobs"
	if noShow {
		column = "no_show_cancels"
	}
	tag, err := TxorDB(ctx, s.db).Exec(ctx,
		fmt.Sprintf(`UPDATE driver_stats SET %s = %s + 1 WHERE driver_id = $1`, column, column), driverID)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}

func (s *Store) RecordBidOutcome(ctx context.Context, driverID string, won bool) error {
	const op = "Store.RecordBidOutcome"
	const alpha = 0.1
	target := 0.0
	if won {
		target = 1.0
	}
	tag, err := TxorDB(ctx, s.db).Exec(ctx, `
		UPDATE driver_stats
		SET accept_rate = CASE WHEN accept_rate = 0 THEN $2 ELSE accept_rate * (1 - $3) + $2 * $3 END
		WHERE driver_id = $1`, driverID, target, alpha)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}

func (s *Store) RecordSpoofSample(ctx context.Context, driverID string, risk, threshold float64) (int, error) {
	const op = "Store.RecordSpoofSample"

	if _, err := TxorDB(ctx, s.db).Exec(ctx,
		`UPDATE drivers SET spoof_risk = $1 WHERE id = $2`, risk, driverID); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return 0, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	var streak int
	err := TxorDB(ctx, s.db).QueryRow(ctx, `
		UPDATE driver_stats
		SET spoof_streak = CASE WHEN $2 >= $3 THEN spoof_streak + 1 ELSE 0 END
		WHERE driver_id = $1
		RETURNING spoof_streak`, driverID, risk, threshold,
	).Scan(&streak)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, types.ErrDriverNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return 0, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return streak, nil
}

func (s *Store) StaleDrivers(ctx context.Context, olderThan time.Duration) ([]*models.Driver, error) {
	const op = "Store.StaleDrivers"
	cutoff := time.Now().Add(-olderThan)

	rows, err := TxorDB(ctx, s.db).Query(ctx, `
		SELECT id, name, vehicle_class, status, api_key_hash, h3_cell,
			lat, lon, heading, gps_accuracy_m, location_ts, spoof_risk, status_changed_at, last_job_completed_at
		FROM drivers WHERE status != $1 AND location_ts < $2 ORDER BY id`,
		types.DriverOffline, cutoff)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []*models.Driver
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(
			&d.ID, &d.Name, &d.VehicleClass, &d.Status, &d.APIKeyHash, &d.H3Cell,
			&d.Lat, &d.Lon, &d.Heading, &d.GPSAccuracyM, &d.LocationTS, &d.SpoofRisk, &d.StatusChangedAt, &d.LastJobCompletedAt,
		); err != nil {
			ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
			return nil, wrap.Error(ctx, fmt.Errorf("%s: scan: %w", op, err))
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
