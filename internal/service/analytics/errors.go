package analytics

import "errors"

// Sentinel errors for the analytics service layer.
var (
	ErrNotFound            = errors.New("journey not found")
	ErrSnapshotNotFound    = errors.New("no analytics snapshot exists for journey")
	ErrRecomputeInProgress = errors.New("analytics recompute already in progress for journey")
)
