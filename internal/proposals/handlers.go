package proposals

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vintaratours/proposals-backend/internal/auth"
	"github.com/vintaratours/proposals-backend/internal/notify"
	"github.com/vintaratours/proposals-backend/pkg/models"
	"github.com/vintaratours/proposals-backend/pkg/sanitize"
	"github.com/vintaratours/proposals-backend/pkg/utils"
	"github.com/vintaratours/proposals-backend/pkg/validation"
)

const defaultValidDays = 14

type Handler struct {
	db     *gorm.DB
	mailer *notify.Service
}

func NewHandler(db *gorm.DB, mailer *notify.Service) *Handler {
	return &Handler{db: db, mailer: mailer}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// actorMeta records who performed an admin action on an activity entry.
func actorMeta(c *fiber.Ctx) map[string]any {
	return map[string]any{
		"actor_id":   auth.MustUserID(c),
		"actor_name": auth.UserName(c),
	}
}

// findByIDOrNumber loads a proposal by uuid or by its PRO-... number.
func findByIDOrNumber(tx *gorm.DB, idOrNumber string) (*models.Proposal, error) {
	q := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })

	var p models.Proposal
	var err error
	if id, perr := uuid.Parse(idOrNumber); perr == nil {
		err = q.First(&p, "id = ?", id).Error
	} else {
		err = q.First(&p, "number = ?", strings.ToUpper(strings.TrimSpace(idOrNumber))).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	return &p, nil
}

// brandFor resolves the display brand for a proposal, falling back to the
// built-in default when the slug has no row.
func brandFor(tx *gorm.DB, slug string) models.Brand {
	if slug == "" {
		slug = models.DefaultBrand.Slug
	}
	var b models.Brand
	if err := tx.First(&b, "slug = ?", slug).Error; err != nil {
		return models.DefaultBrand
	}
	return b
}

/* =====================================
   POST /api/proposals (admin|staff)
   ===================================== */

type CreateProposalRequest struct {
	ClientName  string `json:"client_name" validate:"required,max=120"`
	ClientEmail string `json:"client_email" validate:"required,email,max=120"`
	ClientPhone string `json:"client_phone" validate:"omitempty,phone"`
	Brand       string `json:"brand" validate:"omitempty,max=40"`

	ServiceItems []itemInput `json:"service_items" validate:"required,min=1,dive"`

	DiscountPercentage *float64 `json:"discount_percentage" validate:"omitempty,gte=0,lte=100"`
	DiscountAmount     *float64 `json:"discount_amount" validate:"omitempty,gte=0"`
	DiscountReason     string   `json:"discount_reason" validate:"omitempty,max=200"`

	ValidDays int    `json:"valid_days" validate:"omitempty,gte=1,lte=365"`
	Notes     string `json:"notes" validate:"omitempty,max=5000"`
	Terms     string `json:"terms" validate:"omitempty,max=5000"`
}

// Create godoc
// @Summary      Create proposal
// @Description  Persist a new draft proposal; totals are recomputed from the line items
// @Tags         proposals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateProposalRequest  true  "Proposal payload"
// @Success      201  {object}  models.Proposal
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /proposals [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateProposalRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	validDays := in.ValidDays
	if validDays == 0 {
		validDays = defaultValidDays
	}

	var p models.Proposal
	err := withAllocationRetry(h.db, func(tx *gorm.DB) error {
		number, err := nextProposalNumber(tx, time.Now())
		if err != nil {
			return err
		}

		p = models.Proposal{
			Number:         number,
			ClientName:     strings.TrimSpace(in.ClientName),
			ClientEmail:    strings.ToLower(strings.TrimSpace(in.ClientEmail)),
			ClientPhone:    strings.TrimSpace(in.ClientPhone),
			BrandSlug:      strings.TrimSpace(in.Brand),
			Status:         models.ProposalDraft,
			ValidUntil:     time.Now().AddDate(0, 0, validDays),
			VersionNumber:  1,
			DiscountReason: strings.TrimSpace(in.DiscountReason),
			Notes:          strings.TrimSpace(in.Notes),
			Terms:          strings.TrimSpace(in.Terms),
			Items:          itemRows(in.ServiceItems),
		}
		if p.BrandSlug == "" {
			p.BrandSlug = models.DefaultBrand.Slug
		}
		applyMoney(&p, in.ServiceItems, in.DiscountPercentage, in.DiscountAmount)

		if err := tx.Create(&p).Error; err != nil {
			return err
		}

		meta := actorMeta(c)
		meta["subtotal"] = p.Subtotal
		meta["total"] = p.Total
		return tx.Create(&models.ProposalActivity{
			ProposalID:  p.ID,
			Type:        models.ActivityCreated,
			Description: fmt.Sprintf("Proposal %s created as draft", p.Number),
			Metadata:    datatypes.JSONMap(meta),
		}).Error
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(p)
}

/* =====================================
   GET /api/proposals/:id
   ===================================== */

// Get godoc
// @Summary      Proposal detail
// @Description  Fetch a proposal by uuid or by its PRO-... number
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "proposal id (uuid) or number"
// @Success      200  {object}  models.Proposal
// @Failure      404  {object}  models.ErrorResponse
// @Router       /proposals/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := findByIDOrNumber(h.db, c.Params("id"))
	if err != nil {
		return err
	}
	if p.Items == nil {
		p.Items = []models.ProposalItem{}
	}
	return c.JSON(p)
}

/* =====================================================
   GET /api/proposals?page=&pageSize=&status=
   ===================================================== */

type proposalListItem struct {
	ID            uuid.UUID             `json:"id"`
	Number        string                `json:"number"`
	ClientName    string                `json:"client_name"`
	Status        models.ProposalStatus `json:"status"`
	Total         float64               `json:"total"`
	VersionNumber int                   `json:"version"`
	IsCounter     bool                  `json:"is_counter_proposal"`
	ValidUntil    time.Time             `json:"valid_until"`
	CreatedAt     time.Time             `json:"created_at"`
	Preview       string                `json:"preview"`
}

// List godoc
// @Summary      List proposals
// @Description  Paginated proposal listing with optional status filter
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "status filter"
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  models.ErrorResponse
// @Router       /proposals [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))

	q := h.db.Model(&models.Proposal{})
	if status != "" {
		switch models.ProposalStatus(status) {
		case models.ProposalDraft, models.ProposalSent, models.ProposalViewed,
			models.ProposalAccepted, models.ProposalDeclined:
			q = q.Where("status = ?", status)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []models.Proposal
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]proposalListItem, 0, len(rows))
	for _, p := range rows {
		items = append(items, proposalListItem{
			ID:            p.ID,
			Number:        p.Number,
			ClientName:    p.ClientName,
			Status:        p.Status,
			Total:         p.Total,
			VersionNumber: p.VersionNumber,
			IsCounter:     p.IsCounterProposal,
			ValidUntil:    p.ValidUntil,
			CreatedAt:     p.CreatedAt,
			Preview:       sanitize.Summary(sanitize.RedactPII(p.Notes), 160),
		})
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": items,
	})
}

/* =====================================
   POST /api/proposals/:id/send
   ===================================== */

// Send godoc
// @Summary      Send proposal
// @Description  Transition a draft to sent and email the client a view link
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "proposal id (uuid) or number"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /proposals/{id}/send [post]
func (h *Handler) Send(c *fiber.Ctx) error {
	p, err := findByIDOrNumber(h.db, c.Params("id"))
	if err != nil {
		return err
	}
	if p.Status != models.ProposalDraft {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("only draft proposals can be sent (status is %q)", p.Status))
	}

	now := time.Now()
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Proposal{}).Where("id = ?", p.ID).
			Updates(map[string]any{
				"status":  models.ProposalSent,
				"sent_at": now,
			}).Error; err != nil {
			return err
		}
		return tx.Create(&models.ProposalActivity{
			ProposalID:  p.ID,
			Type:        models.ActivitySent,
			Description: fmt.Sprintf("Proposal %s sent to %s", p.Number, sanitize.RedactPII(p.ClientEmail)),
			Metadata:    datatypes.JSONMap(actorMeta(c)),
		}).Error
	})
	if err != nil {
		return fiber.ErrInternalServerError
	}
	p.Status = models.ProposalSent
	p.SentAt = &now

	h.dispatchEmail(c, p)

	return c.JSON(fiber.Map{
		"id":     p.ID,
		"number": p.Number,
		"status": p.Status,
	})
}

// dispatchEmail emails the client their proposal link. Best-effort: a
// failure is logged and recorded nowhere else; the proposal is already
// committed. On success NotifiedAt is stamped so delivery can be audited.
func (h *Handler) dispatchEmail(c *fiber.Ctx, p *models.Proposal) {
	brand := brandFor(h.db, p.BrandSlug)
	link := notify.BuildClientLink(brand, p)

	if err := h.mailer.SendProposal(brand, p, link); err != nil {
		log.Printf("proposal %s: email dispatch failed: %v", p.Number, err)
		return
	}

	now := time.Now()
	_ = h.db.Model(&models.Proposal{}).Where("id = ?", p.ID).
		Update("notified_at", now).Error
	utils.LogProposalActivity(c.Context(), h.db, p.ID, models.ActivityNotified,
		"Client notification email delivered to mail server", map[string]any{
			"brand": brand.Slug,
		})
}
