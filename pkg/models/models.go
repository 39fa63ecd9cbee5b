package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of back-office user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// ProposalStatus defines lifecycle states for a proposal.
type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "draft"
	ProposalSent     ProposalStatus = "sent"
	ProposalViewed   ProposalStatus = "viewed"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalDeclined ProposalStatus = "declined"
)

// DiscountType says how the discount on a proposal was specified.
// It is resolved once when the proposal is created; downstream code never
// re-derives which of percentage/amount the caller meant.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// ActivityType labels entries in a proposal's append-only activity log.
type ActivityType string

const (
	ActivityCreated        ActivityType = "created"
	ActivitySent           ActivityType = "sent"
	ActivityViewed         ActivityType = "viewed"
	ActivityAccepted       ActivityType = "accepted"
	ActivityDeclined       ActivityType = "declined"
	ActivityCounterCreated ActivityType = "counter_created"
	ActivityNotified       ActivityType = "notification_sent"
)

/* =============================== Entities =============================== */

// User represents a back-office account (admin or staff).
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         Role      `gorm:"type:varchar(20);not null"`
	Name         string
	CreatedAt    time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Brand holds the display configuration used on client-facing pages and
// emails. Proposals reference a brand by slug; unseeded databases fall back
// to DefaultBrand.
type Brand struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Slug        string    `gorm:"uniqueIndex;not null"`
	Name        string    `gorm:"not null"`
	AccentColor string    `gorm:"type:varchar(20)"`
	ReplyEmail  string
	Phone       string
	BaseURL     string // client links are built from this
	CreatedAt   time.Time
}

func (b *Brand) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// DefaultBrand is used when a proposal's brand slug has no row.
var DefaultBrand = Brand{
	Slug:        "default",
	Name:        "Vintara Tours",
	AccentColor: "#722f37",
	ReplyEmail:  "concierge@vintaratours.com",
	BaseURL:     "https://vintaratours.com",
}

// Proposal represents a priced offer sent to a prospective client.
//
// Chain fields: ParentProposalID is nil on the root of a negotiation chain
// and always points at the root (never at an intermediate counter) on every
// other member. VersionNumber is 1 on the root and unique within a chain;
// the (parent_proposal_id, version_number) unique index backs the retry in
// the counter generator, so versions are increasing but not guaranteed
// contiguous.
type Proposal struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Number      string    `gorm:"size:20;uniqueIndex;not null"` // PRO-<year>-NNNN, scoped per calendar year
	PublicToken uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`

	// Client contact
	ClientName  string `gorm:"not null"`
	ClientEmail string `gorm:"not null"`
	ClientPhone string
	BrandSlug   string `gorm:"size:40;default:'default'"`

	// Money. Subtotal and Total are always recomputed from the line items,
	// never trusted from input.
	Subtotal           float64
	DiscountType       DiscountType `gorm:"type:varchar(20);default:'none'"`
	DiscountPercentage float64
	DiscountAmount     float64
	DiscountReason     string
	Total              float64

	// Lifecycle
	Status      ProposalStatus `gorm:"type:varchar(20);default:'draft';index"`
	ValidUntil  time.Time
	SentAt      *time.Time
	ViewedAt    *time.Time
	RespondedAt *time.Time
	NotifiedAt  *time.Time // set after a client email actually went out

	// Negotiation chain
	ParentProposalID  *uuid.UUID `gorm:"type:uuid;index;uniqueIndex:ux_chain_version"`
	VersionNumber     int        `gorm:"default:1;uniqueIndex:ux_chain_version"`
	IsCounterProposal bool       `gorm:"default:false"`
	CounterNotes      string     `gorm:"type:text"`

	Notes string `gorm:"type:text"`
	Terms string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	Items []ProposalItem `gorm:"foreignKey:ProposalID"`
}

func (p *Proposal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PublicToken == uuid.Nil {
		p.PublicToken = uuid.New()
	}
	return nil
}

// RootID returns the id of the chain's root proposal.
func (p *Proposal) RootID() uuid.UUID {
	if p.ParentProposalID != nil {
		return *p.ParentProposalID
	}
	return p.ID
}

// IsOpen reports whether the client can still respond.
func (p *Proposal) IsOpen() bool {
	return p.Status == ProposalSent || p.Status == ProposalViewed
}

// ProposalItem is a priced service line on a proposal.
type ProposalItem struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProposalID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Description string    `gorm:"size:500;not null"`
	Price       float64   `gorm:"not null"`
	Position    int       `gorm:"default:0"`
	CreatedAt   time.Time
}

func (i *ProposalItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ProposalActivity is an append-only audit record for a proposal. Rows are
// written once and never updated; state lives on the proposal row itself.
type ProposalActivity struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ProposalID  uuid.UUID         `gorm:"type:uuid;not null;index"`
	Type        ActivityType      `gorm:"type:varchar(30);not null"`
	Description string            `gorm:"type:text"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"` // actor, changed fields, discount delta, ...
	CreatedAt   time.Time
}

func (a *ProposalActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
