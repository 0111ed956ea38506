package postgres

import (
	"context"
	"fmt"

	"github.com/fleetcore/dispatch/internal/domain/models"
	"github.com/fleetcore/dispatch/internal/domain/types"
	"github.com/fleetcore/dispatch/internal/geo"
	wrap "github.com/fleetcore/dispatch/pkg/logger/wrapper"
	"github.com/jackc/pgx/v5"
)

const locationRingSize = 4

// PushLocation appends a sample to the driver's location history and mirrors
// the latest fix (and its H3 cell) onto the drivers row, trimming history
// past locationRingSize so the SpoofDetector always compares against recent
// motion.
func (s *Store) PushLocation(ctx context.Context, sample models.LocationSample) error {
	const op = "Store.PushLocation"

	tag, err := TxorDB(ctx, s.db).Exec(ctx, `
		UPDATE drivers SET lat=$1, lon=$2, heading=$3, gps_accuracy_m=$4, location_ts=$5, h3_cell=$7 WHERE id=$6`,
		sample.Lat, sample.Lon, sample.Heading, sample.AccuracyM, sample.TS, sample.DriverID, geo.Cell(sample.Lat, sample.Lon))
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}

	if _, err := TxorDB(ctx, s.db).Exec(ctx, `
		INSERT INTO locations(driver_id, lat, lon, heading, accuracy_m, ts) VALUES($1,$2,$3,$4,$5,$6)`,
		sample.DriverID, sample.Lat, sample.Lon, sample.Heading, sample.AccuracyM, sample.TS,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: insert history: %w", op, err))
	}

	if _, err := TxorDB(ctx, s.db).Exec(ctx, `
		DELETE FROM locations WHERE driver_id = $1 AND ts < (
			SELECT ts FROM locations WHERE driver_id = $1 ORDER BY ts DESC OFFSET $2 LIMIT 1
		)`, sample.DriverID, locationRingSize,
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: trim history: %w", op, err))
	}

	return nil
}

func (s *Store) LastLocation(ctx context.Context, driverID string) (models.LocationSample, bool, error) {
	const op = "Store.LastLocation"

	var sample models.LocationSample
	err := TxorDB(ctx, s.db).QueryRow(ctx, `
		SELECT driver_id, lat, lon, heading, accuracy_m, ts
		FROM locations WHERE driver_id = $1 ORDER BY ts DESC LIMIT 1`, driverID,
	).Scan(&sample.DriverID, &sample.Lat, &sample.Lon, &sample.Heading, &sample.AccuracyM, &sample.TS)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.LocationSample{}, false, nil
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTxFailed)
		return models.LocationSample{}, false, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return sample, true, nil
}
