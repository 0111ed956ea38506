// Package postgres is the production Store, one file per aggregate
// (drivers, jobs, locations) in the teacher's repository shape.
//
// Expected schema (applied out of band, same as the teacher leaves to
// deployment tooling rather than an in-repo migration runner):
//
//	drivers(id text pk, name text, vehicle_class int, status text,
//	        api_key_hash text, h3_cell text, lat double precision,
//	        lon double precision, heading double precision,
//	        gps_accuracy_m double precision, location_ts timestamptz, spoof_risk double precision,
//	        status_changed_at timestamptz, last_job_completed_at timestamptz)
//	driver_stats(driver_id text pk references drivers, completed_jobs int,
//	        cancelled_jobs int, no_show_cancels int, accept_rate double precision,
//	        avg_rating double precision, spoof_streak int)
//	jobs(id text pk, pickup_text text, dropoff_text text, pickup_lat double precision,
//	        pickup_lon double precision, dropoff_lat double precision, dropoff_lon double precision,
//	        passengers int, passenger_detail text, vehicle_required int, vehicle_override int,
//	        priority text, payment_method text, caller_name text, caller_phone text,
//	        fare_estimate double precision, bidding_window_seconds int, created_at timestamptz,
//	        status text, allocated_driver_id text, driver_distance_km double precision,
//	        driver_eta_min int, allocated_at timestamptz, coords_fixed bool, bids_json jsonb,
//	        uninvited_bid_count int)
//	bids(job_id text, driver_id text, driver_lat double precision, driver_lon double precision,
//	        distance_km double precision, completed_jobs_snapshot int, uninvited bool,
//	        bid_ts timestamptz, primary key(job_id, driver_id))
//	locations(driver_id text, lat double precision, lon double precision, heading double precision,
//	        accuracy_m double precision, ts timestamptz)
package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed implementation of store.Store.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}
