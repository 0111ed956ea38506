package wrap

import (
	"context"
)

type (
	// LogCtx holds contextual information for logging
	LogCtx struct {
		Action    string
		RequestID string
		JobID     string
		DriverID  string
		AuctionID string
	}

	// logCtxKeyStruct is an unexported type for context keys defined in this package.
	logCtxKeyStruct struct{}
)

// LogCtxKey is the key for log context values
var LogCtxKey = &logCtxKeyStruct{}

// WithLogCtx returns a new context with the provided LogCtx
func WithLogCtx(ctx context.Context, newLc LogCtx) context.Context {
	// Check if there's an existing LogCtx and merge values
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		if newLc.Action == "" {
			newLc.Action = lc.Action
		}
		if newLc.RequestID == "" {
			newLc.RequestID = lc.RequestID
		}
		if newLc.JobID == "" {
			newLc.JobID = lc.JobID
		}
		if newLc.DriverID == "" {
			newLc.DriverID = lc.DriverID
		}
		if newLc.AuctionID == "" {
			newLc.AuctionID = lc.AuctionID
		}
		return context.WithValue(ctx, LogCtxKey, newLc)
	}
	return context.WithValue(ctx, LogCtxKey, newLc)
}

// WithDriverID adds or updates the DriverID in the LogCtx within the context
func WithDriverID(ctx context.Context, driverID string) context.Context {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		lc.DriverID = driverID
		return context.WithValue(ctx, LogCtxKey, lc)
	}
	return context.WithValue(ctx, LogCtxKey, LogCtx{DriverID: driverID})
}

// WithRequestID adds or updates the RequestID in the LogCtx within the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		lc.RequestID = requestID
		return context.WithValue(ctx, LogCtxKey, lc)
	}
	return context.WithValue(ctx, LogCtxKey, LogCtx{RequestID: requestID})
}

// WithJobID adds or updates the JobID in the LogCtx within the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		lc.JobID = jobID
		return context.WithValue(ctx, LogCtxKey, lc)
	}
	return context.WithValue(ctx, LogCtxKey, LogCtx{JobID: jobID})
}

// WithAction adds or updates the Action in the LogCtx within the context
func WithAction(ctx context.Context, action string) context.Context {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		lc.Action = action
		return context.WithValue(ctx, LogCtxKey, lc)
	}
	return context.WithValue(ctx, LogCtxKey, LogCtx{Action: action})
}

// WithAuctionID adds or updates the AuctionID in the LogCtx within the context
func WithAuctionID(ctx context.Context, auctionID string) context.Context {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		lc.AuctionID = auctionID
		return context.WithValue(ctx, LogCtxKey, lc)
	}
	return context.WithValue(ctx, LogCtxKey, LogCtx{AuctionID: auctionID})
}

func GetRequestID(ctx context.Context) string {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		return lc.RequestID
	}
	return ""
}

func GetLogCtx(ctx context.Context) LogCtx {
	if lc, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		return lc
	}
	return LogCtx{}
}
