package proposals

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vintaratours/proposals-backend/pkg/models"
)

// Client-facing surface. Clients only ever see the opaque public token,
// never the numeric id or the sequential number, which would be enumerable.

// findByToken loads a proposal by its public token.
func findByToken(tx *gorm.DB, token string) (*models.Proposal, error) {
	t, err := uuid.Parse(token)
	if err != nil {
		return nil, fiber.ErrNotFound
	}
	var p models.Proposal
	if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&p, "public_token = ?", t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	return &p, nil
}

type clientItem struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

type clientBrand struct {
	Name        string `json:"name"`
	AccentColor string `json:"accent_color"`
	ReplyEmail  string `json:"reply_email"`
	Phone       string `json:"phone,omitempty"`
}

type clientProposalView struct {
	Number             string                `json:"number"`
	Status             models.ProposalStatus `json:"status"`
	ClientName         string                `json:"client_name"`
	Items              []clientItem          `json:"items"`
	Subtotal           float64               `json:"subtotal"`
	DiscountAmount     float64               `json:"discount_amount"`
	DiscountPercentage float64               `json:"discount_percentage"`
	DiscountReason     string                `json:"discount_reason,omitempty"`
	Total              float64               `json:"total"`
	ValidUntil         time.Time             `json:"valid_until"`
	Expired            bool                  `json:"expired"`
	Version            int                   `json:"version"`
	IsCounterProposal  bool                  `json:"is_counter_proposal"`
	CounterNotes       string                `json:"counter_notes,omitempty"`
	Notes              string                `json:"notes,omitempty"`
	Terms              string                `json:"terms,omitempty"`
	Brand              clientBrand           `json:"brand"`
}

// ClientView godoc
// @Summary      View proposal (client)
// @Description  Client opens their proposal via the shareable token; first open transitions sent to viewed
// @Tags         client
// @Produce      json
// @Param        token  path string true "public token (uuid)"
// @Success      200  {object}  clientProposalView
// @Failure      404  {object}  models.ErrorResponse
// @Router       /proposals/{token} [get]
func (h *Handler) ClientView(c *fiber.Ctx) error {
	p, err := findByToken(h.db, c.Params("token"))
	if err != nil {
		return err
	}

	// First open moves sent -> viewed; later opens change nothing.
	if p.Status == models.ProposalSent {
		now := time.Now()
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Proposal{}).
				Where("id = ? AND status = ?", p.ID, models.ProposalSent).
				Updates(map[string]any{
					"status":    models.ProposalViewed,
					"viewed_at": now,
				}).Error; err != nil {
				return err
			}
			return tx.Create(&models.ProposalActivity{
				ProposalID:  p.ID,
				Type:        models.ActivityViewed,
				Description: fmt.Sprintf("Proposal %s opened by the client", p.Number),
			}).Error
		})
		if err != nil {
			return fiber.ErrInternalServerError
		}
		p.Status = models.ProposalViewed
		p.ViewedAt = &now
	}

	brand := brandFor(h.db, p.BrandSlug)
	items := make([]clientItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, clientItem{Description: it.Description, Price: it.Price})
	}

	return c.JSON(clientProposalView{
		Number:             p.Number,
		Status:             p.Status,
		ClientName:         p.ClientName,
		Items:              items,
		Subtotal:           p.Subtotal,
		DiscountAmount:     p.DiscountAmount,
		DiscountPercentage: p.DiscountPercentage,
		DiscountReason:     p.DiscountReason,
		Total:              p.Total,
		ValidUntil:         p.ValidUntil,
		Expired:            time.Now().After(p.ValidUntil),
		Version:            p.VersionNumber,
		IsCounterProposal:  p.IsCounterProposal,
		CounterNotes:       p.CounterNotes,
		Notes:              p.Notes,
		Terms:              p.Terms,
		Brand: clientBrand{
			Name:        brand.Name,
			AccentColor: brand.AccentColor,
			ReplyEmail:  brand.ReplyEmail,
			Phone:       brand.Phone,
		},
	})
}

type declineRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=2000"`
}

// respond applies a terminal client decision (accepted/declined) and appends
// the matching activity entry in the same transaction.
func (h *Handler) respond(c *fiber.Ctx, status models.ProposalStatus, activity models.ActivityType, meta map[string]any) error {
	p, err := findByToken(h.db, c.Params("token"))
	if err != nil {
		return err
	}
	if !p.IsOpen() {
		return fiber.NewError(fiber.StatusConflict,
			fmt.Sprintf("proposal can no longer be responded to (status is %q)", p.Status))
	}

	now := time.Now()
	err = h.db.Transaction(func(tx *gorm.DB) error {
		// Guarded update: only one decision wins when two arrive at once.
		res := tx.Model(&models.Proposal{}).
			Where("id = ? AND status IN ?", p.ID, []models.ProposalStatus{models.ProposalSent, models.ProposalViewed}).
			Updates(map[string]any{
				"status":       status,
				"responded_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusConflict, "proposal was already responded to")
		}
		return tx.Create(&models.ProposalActivity{
			ProposalID:  p.ID,
			Type:        activity,
			Description: fmt.Sprintf("Proposal %s %s by the client", p.Number, status),
			Metadata:    datatypes.JSONMap(meta),
		}).Error
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"number": p.Number,
		"status": status,
	})
}

// ClientAccept godoc
// @Summary      Accept proposal (client)
// @Tags         client
// @Produce      json
// @Param        token  path string true "public token (uuid)"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /proposals/{token}/accept [post]
func (h *Handler) ClientAccept(c *fiber.Ctx) error {
	return h.respond(c, models.ProposalAccepted, models.ActivityAccepted, nil)
}

// ClientDecline godoc
// @Summary      Decline proposal (client)
// @Description  Decline with an optional reason; a declined proposal can later be countered by an admin
// @Tags         client
// @Accept       json
// @Produce      json
// @Param        token  path string true "public token (uuid)"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /proposals/{token}/decline [post]
func (h *Handler) ClientDecline(c *fiber.Ctx) error {
	var in declineRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	var meta map[string]any
	if in.Reason != "" {
		meta = map[string]any{"reason": in.Reason}
	}
	return h.respond(c, models.ProposalDeclined, models.ActivityDeclined, meta)
}
