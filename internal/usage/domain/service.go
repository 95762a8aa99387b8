package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hirelens/hirelens/internal/plan"
)

// Response is the wire representation of one usage counter.
type Response struct {
	FeatureKey string    `json:"feature_key"`
	Day        string    `json:"day"`
	Used       int64     `json:"used"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConsumeResult reports the outcome of one consumption attempt. Remaining is
// nil when the counter has no limit.
type ConsumeResult struct {
	Allowed   bool
	Used      int64
	Remaining *int64
}

// Service owns consumption against daily counters. TryConsume is the only
// write path; it either records one unit atomically or leaves the counter
// untouched.
type Service interface {
	// TryConsume records one unit for today if the counter is still below
	// limit. A nil limit means unlimited. A denied attempt leaves the
	// counter untouched; errors mean the outcome is unknown and callers
	// must not treat the unit as consumed.
	TryConsume(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey, limit *int64) (ConsumeResult, error)
	UsedToday(ctx context.Context, orgID snowflake.ID, feature plan.FeatureKey) (int64, error)
	List(ctx context.Context) ([]Response, error)
	// PurgeBefore drops counters older than the cutoff instant's UTC day.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var ErrInvalidOrganization = errors.New("invalid_organization")
