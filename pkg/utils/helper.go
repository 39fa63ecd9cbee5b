package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vintaratours/proposals-backend/pkg/models"
)

// LogProposalActivity inserts an audit record into proposal_activities
// outside any transaction. Used for records that must not affect the
// outcome of the surrounding operation (e.g. notification bookkeeping);
// transactional writers append activity rows on their own tx instead.
// Errors are ignored on purpose (best-effort logging).
func LogProposalActivity(
	ctx context.Context,
	db *gorm.DB,
	proposalID uuid.UUID,
	typ models.ActivityType,
	description string,
	metadata map[string]any,
) {
	_ = db.WithContext(ctx).Create(&models.ProposalActivity{
		ProposalID:  proposalID,
		Type:        typ,
		Description: description,
		Metadata:    datatypes.JSONMap(metadata),
		CreatedAt:   time.Now(),
	}).Error
}
