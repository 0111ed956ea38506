package types

// Action tags attached to contexts via pkg/logger/wrapper, surfaced as the
// "action" field on every structured log line produced while that context
// is in scope.
const (
	ActionJobAdmitted        = "job_admitted"
	ActionJobRejected        = "job_rejected"
	ActionAuctionOpened      = "auction_opened"
	ActionBidRecorded        = "bid_recorded"
	ActionBidRejected        = "bid_rejected"
	ActionAuctionDrained     = "auction_drained"
	ActionMatchRun           = "match_run"
	ActionJobAllocated       = "job_allocated"
	ActionJobReturned        = "job_returned_to_pending"
	ActionJobCancelled       = "job_cancelled"
	ActionWatchdogTick       = "watchdog_tick"
	ActionLocationIngested   = "location_ingested"
	ActionDriverDemoted      = "driver_demoted"
	ActionDatabaseTxFailed   = "database_transaction_failed"
	ActionBusPublishFailed   = "bus_publish_failed"
	ActionGeocodeFallback    = "geocode_fallback"
	ActionDispatcherAuthenticated = "dispatcher_authenticated"
)
