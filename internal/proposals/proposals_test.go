// internal/proposals/proposals_test.go
package proposals

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vintaratours/proposals-backend/internal/auth"
	"github.com/vintaratours/proposals-backend/internal/notify"
	"github.com/vintaratours/proposals-backend/pkg/models"
)

/* ===== helpers ===== */

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Brand{}, &models.Proposal{},
		&models.ProposalItem{}, &models.ProposalActivity{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// injectAuth plants the locals RequireAuth would normally set.
func injectAuth(userID uuid.UUID, role string) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", role)
		c.Locals("userName", "Test Admin")
		return c.Next()
	}
}

func newTestApp(h *Handler, userID uuid.UUID, role string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	api := app.Group("/api", injectAuth(userID, role))
	api.Post("/proposals", h.Create)
	api.Get("/proposals", h.List)
	api.Get("/proposals/:id", h.Get)
	api.Post("/proposals/:id/send", h.Send)
	api.Post("/proposals/:id/counter", auth.RequireRole(string(models.RoleAdmin)), h.CreateCounter)
	api.Get("/proposals/:id/counter", auth.RequireRole(string(models.RoleAdmin)), h.GetNegotiation)
	app.Get("/proposals/:token", h.ClientView)
	app.Post("/proposals/:token/accept", h.ClientAccept)
	app.Post("/proposals/:token/decline", h.ClientDecline)
	return app
}

func newHandler(db *gorm.DB) *Handler {
	// Unconfigured mailer: dispatch fails and is logged, which is exactly
	// the best-effort path.
	return NewHandler(db, notify.NewService(notify.Config{}))
}

// seedProposal inserts a proposal directly, bypassing the handler.
func seedProposal(t *testing.T, db *gorm.DB, status models.ProposalStatus, number string) *models.Proposal {
	t.Helper()
	p := &models.Proposal{
		Number:             number,
		ClientName:         "Ava Client",
		ClientEmail:        "ava@example.test",
		Status:             status,
		ValidUntil:         time.Now().AddDate(0, 0, 14),
		Subtotal:           500,
		DiscountType:       models.DiscountPercentage,
		DiscountPercentage: 10,
		DiscountAmount:     50,
		Total:              450,
		VersionNumber:      1,
		Terms:              "Full payment on booking",
		Items: []models.ProposalItem{
			{Description: "Private vineyard tour", Price: 500, Position: 0},
		},
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatal(err)
	}
	return p
}

func countProposals(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Proposal{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

/* ================== TESTS ================== */

func Test_Create_ComputesMoneyAndNumber(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	body := `{
		"client_name": "Ava Client",
		"client_email": "ava@example.test",
		"service_items": [
			{"description": "Private vineyard tour", "price": 300},
			{"description": "Tasting flight", "price": 200}
		],
		"discount_percentage": 10
	}`
	req := httptest.NewRequest("POST", "/api/proposals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != 201 {
		t.Fatalf("create got %d", resp.StatusCode)
	}

	var p models.Proposal
	if err := db.Preload("Items").First(&p).Error; err != nil {
		t.Fatal(err)
	}
	wantNumber := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	if p.Number != wantNumber {
		t.Fatalf("number = %s, want %s", p.Number, wantNumber)
	}
	if p.Subtotal != 500 || p.DiscountAmount != 50 || p.Total != 450 {
		t.Fatalf("money = %v/%v/%v, want 500/50/450", p.Subtotal, p.DiscountAmount, p.Total)
	}
	if p.DiscountType != models.DiscountPercentage {
		t.Fatalf("discount type = %s", p.DiscountType)
	}
	if p.Status != models.ProposalDraft || p.VersionNumber != 1 || p.ParentProposalID != nil {
		t.Fatalf("lifecycle fields wrong: %+v", p)
	}
	if p.PublicToken == uuid.Nil {
		t.Fatal("public token not assigned")
	}
	if len(p.Items) != 2 {
		t.Fatalf("items = %d", len(p.Items))
	}

	// Yearly sequence advances
	req2 := httptest.NewRequest("POST", "/api/proposals", strings.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	resp2, _ := app.Test(req2)
	if resp2.StatusCode != 201 {
		t.Fatalf("create-2 got %d", resp2.StatusCode)
	}
	var second models.Proposal
	if err := db.Order("created_at DESC").First(&second, "number LIKE ?", "PRO-%-0002").Error; err != nil {
		t.Fatalf("second number not allocated: %v", err)
	}

	// created activity in the same transaction
	var acts int64
	if err := db.Model(&models.ProposalActivity{}).
		Where("proposal_id = ? AND type = ?", p.ID, models.ActivityCreated).
		Count(&acts).Error; err != nil {
		t.Fatal(err)
	}
	if acts != 1 {
		t.Fatalf("want 1 created activity, got %d", acts)
	}
}

func Test_Create_FixedDiscountWinsAndClamps(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	// Both legs supplied: the fixed amount wins.
	body := `{
		"client_name": "Ava Client",
		"client_email": "ava@example.test",
		"service_items": [{"description": "Tour", "price": 400}],
		"discount_percentage": 50,
		"discount_amount": 100
	}`
	req := httptest.NewRequest("POST", "/api/proposals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != 201 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var p models.Proposal
	if err := db.First(&p).Error; err != nil {
		t.Fatal(err)
	}
	if p.DiscountType != models.DiscountFixed || p.DiscountAmount != 100 || p.Total != 300 {
		t.Fatalf("fixed discount not applied: %+v", p)
	}
	if p.DiscountPercentage != 25 {
		t.Fatalf("derived percentage = %v, want 25", p.DiscountPercentage)
	}
}

func Test_Create_NegativePricesCountAsZero(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	body := `{
		"client_name": "Ava Client",
		"client_email": "ava@example.test",
		"service_items": [
			{"description": "Tour", "price": 250},
			{"description": "Comped extra", "price": -40},
			{"description": "Unpriced add-on"}
		]
	}`
	req := httptest.NewRequest("POST", "/api/proposals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != 201 {
		t.Fatalf("got %d", resp.StatusCode)
	}

	var p models.Proposal
	if err := db.First(&p).Error; err != nil {
		t.Fatal(err)
	}
	if p.Subtotal != 250 || p.Total != 250 {
		t.Fatalf("subtotal/total = %v/%v, want 250/250", p.Subtotal, p.Total)
	}
}

func Test_Create_ValidationFails(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	body := `{"client_name": "A", "client_email": "not-an-email", "service_items": []}`
	req := httptest.NewRequest("POST", "/api/proposals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != 400 {
		t.Fatalf("got %d, want 400", resp.StatusCode)
	}
	if n := countProposals(t, db); n != 0 {
		t.Fatalf("no row should exist, got %d", n)
	}
}

func Test_Get_ByIDAndByNumber(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	p := seedProposal(t, db, models.ProposalDraft, number)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	for _, key := range []string{p.ID.String(), number} {
		req := httptest.NewRequest("GET", "/api/proposals/"+key, nil)
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("get %s got %d", key, resp.StatusCode)
		}
		var out models.Proposal
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.ID != p.ID {
			t.Fatalf("get %s returned wrong row", key)
		}
	}

	req := httptest.NewRequest("GET", "/api/proposals/"+uuid.NewString(), nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 404 {
		t.Fatalf("missing proposal got %d, want 404", resp.StatusCode)
	}
}

func Test_Send_TransitionsDraftOnly(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	p := seedProposal(t, db, models.ProposalDraft, number)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	req := httptest.NewRequest("POST", "/api/proposals/"+p.ID.String()+"/send", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("send got %d", resp.StatusCode)
	}

	var got models.Proposal
	if err := db.First(&got, "id = ?", p.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ProposalSent || got.SentAt == nil {
		t.Fatalf("not sent: status=%s sent_at=%v", got.Status, got.SentAt)
	}
	var acts int64
	_ = db.Model(&models.ProposalActivity{}).
		Where("proposal_id = ? AND type = ?", p.ID, models.ActivitySent).
		Count(&acts).Error
	if acts != 1 {
		t.Fatalf("want 1 sent activity, got %d", acts)
	}

	// Second send is rejected
	req2 := httptest.NewRequest("POST", "/api/proposals/"+p.ID.String()+"/send", nil)
	resp2, _ := app.Test(req2)
	if resp2.StatusCode != 400 {
		t.Fatalf("re-send got %d, want 400", resp2.StatusCode)
	}
}

func Test_List_FiltersByStatus(t *testing.T) {
	db := openTestDB(t)
	year := time.Now().Year()
	seedProposal(t, db, models.ProposalDraft, fmt.Sprintf("PRO-%d-0001", year))
	seedProposal(t, db, models.ProposalDeclined, fmt.Sprintf("PRO-%d-0002", year))
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleStaff))

	req := httptest.NewRequest("GET", "/api/proposals?status=declined", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("list got %d", resp.StatusCode)
	}
	var out struct {
		Total int64 `json:"total"`
		Items []struct {
			Status string `json:"status"`
		} `json:"items"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Total != 1 || len(out.Items) != 1 || out.Items[0].Status != "declined" {
		t.Fatalf("filter failed: %+v", out)
	}

	bad := httptest.NewRequest("GET", "/api/proposals?status=bogus", nil)
	respBad, _ := app.Test(bad)
	if respBad.StatusCode != 400 {
		t.Fatalf("bogus filter got %d, want 400", respBad.StatusCode)
	}
}
