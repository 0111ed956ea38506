package types

import "errors"

var (
	ErrDuplicateID       = errors.New("id already exists")
	ErrIllegalTransition = errors.New("illegal job status transition")
	ErrDuplicateBid      = errors.New("bid already recorded for this job/driver pair")
	ErrAuctionNotOpen    = errors.New("job is not accepting bids")
	ErrDriverNotFound    = errors.New("driver not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrNoCoordinates     = errors.New("no usable coordinates")
	ErrInvalidCoords     = errors.New("coordinates outside serviceable area")
	ErrBusy              = errors.New("intake queue is full")
	ErrSpoofedIdentity   = errors.New("driver failed api key verification")
	ErrInvalidWindow     = errors.New("bidding window out of bounds")
)
