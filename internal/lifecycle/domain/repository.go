package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, lifecycle *Lifecycle) error
	FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Lifecycle, error)
	// TransitionStatus flips status from "from" to "to" together with the
	// given column updates, guarded on the row still being in "from".
	// Returns false with no error when another caller won the race; the
	// caller treats that as already done.
	TransitionStatus(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, to Status, updates map[string]interface{}) (bool, error)
	RecordTransition(ctx context.Context, db *gorm.DB, transition *Transition) error
	ListTransitions(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Transition, error)
	CountTransitions(ctx context.Context, db *gorm.DB, orgID snowflake.ID, to Status) (int64, error)
}
