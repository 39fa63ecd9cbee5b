package proposals

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vintaratours/proposals-backend/pkg/models"
)

// Negotiation chain resolver. Every member of a chain links directly to the
// root (ParentProposalID is the root id or nil on the root itself), so all
// chain queries reduce to "id = root OR parent_proposal_id = root" and work
// the same no matter which member the caller starts from.

// nextVersionNumber computes the version a new counter in p's chain gets.
// The root is implicitly version 1, so an unversioned chain yields 2.
func nextVersionNumber(tx *gorm.DB, p *models.Proposal) (int, error) {
	rootID := p.RootID()
	var max int
	err := tx.Model(&models.Proposal{}).
		Where("id = ? OR parent_proposal_id = ?", rootID, rootID).
		Select("COALESCE(MAX(version_number), 1)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max < 1 {
		max = 1
	}
	return max + 1, nil
}

// chainFor returns the full negotiation chain of p, root first.
func chainFor(tx *gorm.DB, p *models.Proposal) ([]models.Proposal, error) {
	rootID := p.RootID()
	var chain []models.Proposal
	err := tx.
		Where("id = ? OR parent_proposal_id = ?", rootID, rootID).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("version_number ASC, created_at ASC").
		Find(&chain).Error
	return chain, err
}

// activityForChain returns every activity entry for the given proposals,
// newest first. The feed ordering is deliberately the reverse of the chain's.
func activityForChain(tx *gorm.DB, chain []models.Proposal) ([]models.ProposalActivity, error) {
	ids := make([]uuid.UUID, 0, len(chain))
	for _, p := range chain {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return []models.ProposalActivity{}, nil
	}
	var feed []models.ProposalActivity
	err := tx.
		Where("proposal_id IN ?", ids).
		Order("created_at DESC").
		Find(&feed).Error
	if feed == nil {
		feed = []models.ProposalActivity{}
	}
	return feed, err
}
