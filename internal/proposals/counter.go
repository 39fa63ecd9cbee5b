package proposals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vintaratours/proposals-backend/internal/notify"
	"github.com/vintaratours/proposals-backend/pkg/models"
	"github.com/vintaratours/proposals-backend/pkg/validation"
)

/* =====================================
   POST /api/proposals/:id/counter (admin)
   ===================================== */

type CounterRequest struct {
	CounterNotes string `json:"counter_notes" validate:"omitempty,max=5000"`

	// When omitted, the original's line items and discount carry over and
	// are re-resolved against the (unchanged) subtotal.
	ServiceItems []itemInput `json:"service_items" validate:"omitempty,dive"`

	DiscountPercentage *float64 `json:"discount_percentage" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64 `json:"discount_amount" validate:"omitempty,gte=0"`
	DiscountReason     string   `json:"discount_reason" validate:"omitempty,max=200"`

	ValidDays       int  `json:"valid_days" validate:"omitempty,gte=1,lte=365"`
	SendImmediately bool `json:"send_immediately"`
}

type counterResult struct {
	CounterProposalID      uuid.UUID `json:"counter_proposal_id"`
	CounterProposalNumber  string    `json:"counter_proposal_number"`
	UUID                   uuid.UUID `json:"uuid"`
	Version                int       `json:"version"`
	OriginalProposalID     uuid.UUID `json:"original_proposal_id"`
	OriginalProposalNumber string    `json:"original_proposal_number"`
	Status                 string    `json:"status"`
	ClientLink             string    `json:"client_link"`
	Message                string    `json:"message"`
}

// CreateCounter godoc
// @Summary      Create counter-proposal
// @Description  Derive a revised proposal from a declined one in the same negotiation chain
// @Tags         proposals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path string          true  "original proposal id (uuid) or number"
// @Param        payload  body CounterRequest  false "overrides"
// @Success      201  {object}  models.SuccessResponse
// @Failure      400  {object}  models.ErrorResponse  "original is not declined"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /proposals/{id}/counter [post]
func (h *Handler) CreateCounter(c *fiber.Ctx) error {
	var in CounterRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	original, err := findByIDOrNumber(h.db, c.Params("id"))
	if err != nil {
		return err
	}
	if original.Status != models.ProposalDeclined {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("only declined proposals can be countered (status is %q)", original.Status))
	}

	validDays := in.ValidDays
	if validDays == 0 {
		validDays = defaultValidDays
	}

	var counter models.Proposal
	err = withAllocationRetry(h.db, func(tx *gorm.DB) error {
		// Fresh read inside the transaction: the status or the chain may
		// have moved between attempts.
		var orig models.Proposal
		if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
			First(&orig, "id = ?", original.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.ErrNotFound
			}
			return err
		}
		if orig.Status != models.ProposalDeclined {
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("only declined proposals can be countered (status is %q)", orig.Status))
		}

		version, err := nextVersionNumber(tx, &orig)
		if err != nil {
			return err
		}
		number, err := nextProposalNumber(tx, time.Now())
		if err != nil {
			return err
		}

		items := in.ServiceItems
		if len(items) == 0 {
			items = itemInputs(orig.Items)
		}
		pct, amt := in.DiscountPercentage, in.DiscountAmount
		if pct == nil && amt == nil {
			pct, amt = inheritedDiscount(&orig)
		}
		reason := strings.TrimSpace(in.DiscountReason)
		if reason == "" {
			reason = orig.DiscountReason
		}

		rootID := orig.RootID()
		now := time.Now()
		counter = models.Proposal{
			Number:            number,
			ClientName:        orig.ClientName,
			ClientEmail:       orig.ClientEmail,
			ClientPhone:       orig.ClientPhone,
			BrandSlug:         orig.BrandSlug,
			Status:            models.ProposalDraft,
			ValidUntil:        now.AddDate(0, 0, validDays),
			ParentProposalID:  &rootID,
			VersionNumber:     version,
			IsCounterProposal: true,
			CounterNotes:      strings.TrimSpace(in.CounterNotes),
			DiscountReason:    reason,
			Terms:             orig.Terms,
			Items:             itemRows(items),
		}
		applyMoney(&counter, items, pct, amt)

		if in.SendImmediately {
			counter.Status = models.ProposalSent
			counter.SentAt = &now
		}

		if err := tx.Create(&counter).Error; err != nil {
			return err
		}

		// Both sides of the relationship get an entry, so either row's
		// activity feed reaches the other.
		meta := actorMeta(c)
		meta["counter_proposal_id"] = counter.ID.String()
		meta["counter_proposal_number"] = counter.Number
		meta["version"] = version
		meta["discount_delta"] = counter.DiscountAmount - orig.DiscountAmount
		if err := tx.Create(&models.ProposalActivity{
			ProposalID:  orig.ID,
			Type:        models.ActivityCounterCreated,
			Description: fmt.Sprintf("Counter-proposal %s (version %d) created", counter.Number, version),
			Metadata:    datatypes.JSONMap(meta),
		}).Error; err != nil {
			return err
		}

		createdMeta := actorMeta(c)
		createdMeta["original_proposal_id"] = orig.ID.String()
		createdMeta["original_proposal_number"] = orig.Number
		createdMeta["subtotal"] = counter.Subtotal
		createdMeta["total"] = counter.Total
		if err := tx.Create(&models.ProposalActivity{
			ProposalID:  counter.ID,
			Type:        models.ActivityCreated,
			Description: fmt.Sprintf("Proposal %s created as counter to %s", counter.Number, orig.Number),
			Metadata:    datatypes.JSONMap(createdMeta),
		}).Error; err != nil {
			return err
		}

		if in.SendImmediately {
			sentMeta := actorMeta(c)
			sentMeta["send_immediately"] = true
			if err := tx.Create(&models.ProposalActivity{
				ProposalID:  counter.ID,
				Type:        models.ActivitySent,
				Description: fmt.Sprintf("Proposal %s sent to client", counter.Number),
				Metadata:    datatypes.JSONMap(sentMeta),
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	brand := brandFor(h.db, counter.BrandSlug)
	link := notify.BuildClientLink(brand, &counter)

	message := fmt.Sprintf("Counter-proposal %s saved as draft", counter.Number)
	if in.SendImmediately {
		message = fmt.Sprintf("Counter-proposal %s sent to %s", counter.Number, counter.ClientEmail)
		// Notification is best-effort: the counter is already committed and
		// a mail failure must not fail the request.
		h.dispatchEmail(c, &counter)
	}

	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse{
		Success: true,
		Data: counterResult{
			CounterProposalID:      counter.ID,
			CounterProposalNumber:  counter.Number,
			UUID:                   counter.PublicToken,
			Version:                counter.VersionNumber,
			OriginalProposalID:     original.ID,
			OriginalProposalNumber: original.Number,
			Status:                 string(counter.Status),
			ClientLink:             link,
			Message:                message,
		},
	})
}

/* =====================================
   GET /api/proposals/:id/counter (admin)
   ===================================== */

// GetNegotiation godoc
// @Summary      Negotiation chain
// @Description  Return the full version history and activity feed for a proposal's chain
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "proposal id (uuid) or number"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /proposals/{id}/counter [get]
func (h *Handler) GetNegotiation(c *fiber.Ctx) error {
	p, err := findByIDOrNumber(h.db, c.Params("id"))
	if err != nil {
		return err
	}

	chain, err := chainFor(h.db, p)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	feed, err := activityForChain(h.db, chain)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(models.SuccessResponse{
		Success: true,
		Data: fiber.Map{
			"current_proposal":  p,
			"negotiation_chain": chain,
			"activity_log":      feed,
			"total_versions":    len(chain),
		},
	})
}
