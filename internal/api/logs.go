package api

import (
	"context"
	"errors"

	"vidslide/internal/logging"
)

const defaultLogLimit = 200

// FetchLogs reads the log hub for a tail or follow request. A follow request
// that times out returns an empty page with the unchanged cursor.
func FetchLogs(ctx context.Context, hub *logging.StreamHub, req LogStreamRequest) (LogStreamResponse, error) {
	if hub == nil {
		return LogStreamResponse{Next: req.Since}, nil
	}
	query := logging.LogQuery{
		Since:   req.Since,
		Limit:   req.Limit,
		Wait:    req.Follow,
		BatchID: req.BatchID,
		TaskID:  req.TaskID,
	}
	if query.Limit <= 0 {
		query.Limit = defaultLogLimit
	}

	if req.Tail && req.Since == 0 && !req.Follow {
		evts, next := hub.Tail(query)
		return LogStreamResponse{Events: evts, Next: next}, nil
	}
	evts, next, err := hub.Fetch(ctx, query)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return LogStreamResponse{Next: req.Since}, nil
		}
		return LogStreamResponse{}, err
	}
	return LogStreamResponse{Events: evts, Next: next}, nil
}
