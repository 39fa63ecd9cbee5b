// internal/proposals/client_test.go
package proposals

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vintaratours/proposals-backend/pkg/models"
)

func Test_ClientView_TransitionsSentToViewedOnce(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	p := seedProposal(t, db, models.ProposalSent, number)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	req := httptest.NewRequest("GET", "/proposals/"+p.PublicToken.String(), nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("view got %d", resp.StatusCode)
	}
	var view clientProposalView
	_ = json.NewDecoder(resp.Body).Decode(&view)
	if view.Status != models.ProposalViewed {
		t.Fatalf("view status = %s, want viewed", view.Status)
	}
	if view.Number != number || view.Total != 450 || len(view.Items) != 1 {
		t.Fatalf("view payload wrong: %+v", view)
	}
	if view.Brand.Name == "" || view.Brand.ReplyEmail == "" {
		t.Fatalf("brand block missing: %+v", view.Brand)
	}
	if view.Expired {
		t.Fatal("proposal should not be expired yet")
	}

	var got models.Proposal
	if err := db.First(&got, "id = ?", p.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ProposalViewed || got.ViewedAt == nil {
		t.Fatalf("row not transitioned: status=%s viewed_at=%v", got.Status, got.ViewedAt)
	}

	// A second open leaves the row and the activity count alone.
	resp2, _ := app.Test(httptest.NewRequest("GET", "/proposals/"+p.PublicToken.String(), nil))
	if resp2.StatusCode != 200 {
		t.Fatalf("re-view got %d", resp2.StatusCode)
	}
	var viewed int64
	_ = db.Model(&models.ProposalActivity{}).
		Where("proposal_id = ? AND type = ?", p.ID, models.ActivityViewed).
		Count(&viewed).Error
	if viewed != 1 {
		t.Fatalf("want exactly 1 viewed activity, got %d", viewed)
	}
}

func Test_ClientView_UnknownToken(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	for _, token := range []string{uuid.NewString(), "not-a-uuid"} {
		resp, _ := app.Test(httptest.NewRequest("GET", "/proposals/"+token, nil))
		if resp.StatusCode != 404 {
			t.Fatalf("token %q got %d, want 404", token, resp.StatusCode)
		}
	}
}

func Test_ClientView_MarksExpired(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	p := seedProposal(t, db, models.ProposalSent, number)
	if err := db.Model(&models.Proposal{}).Where("id = ?", p.ID).
		Update("valid_until", time.Now().AddDate(0, 0, -1)).Error; err != nil {
		t.Fatal(err)
	}
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	resp, _ := app.Test(httptest.NewRequest("GET", "/proposals/"+p.PublicToken.String(), nil))
	var view clientProposalView
	_ = json.NewDecoder(resp.Body).Decode(&view)
	if !view.Expired {
		t.Fatal("expired flag not set")
	}
	// Expiry is advisory: the proposal stays open for a response.
	if resp.StatusCode != 200 {
		t.Fatalf("expired view got %d", resp.StatusCode)
	}
}

func Test_ClientAccept(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	p := seedProposal(t, db, models.ProposalViewed, number)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	resp, _ := app.Test(httptest.NewRequest("POST", "/proposals/"+p.PublicToken.String()+"/accept", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("accept got %d", resp.StatusCode)
	}

	var got models.Proposal
	if err := db.First(&got, "id = ?", p.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ProposalAccepted || got.RespondedAt == nil {
		t.Fatalf("not accepted: status=%s responded_at=%v", got.Status, got.RespondedAt)
	}
	var acts int64
	_ = db.Model(&models.ProposalActivity{}).
		Where("proposal_id = ? AND type = ?", p.ID, models.ActivityAccepted).
		Count(&acts).Error
	if acts != 1 {
		t.Fatalf("want 1 accepted activity, got %d", acts)
	}

	// Accepting is terminal: a second decision conflicts.
	resp2, _ := app.Test(httptest.NewRequest("POST", "/proposals/"+p.PublicToken.String()+"/decline", nil))
	if resp2.StatusCode != 409 {
		t.Fatalf("decline after accept got %d, want 409", resp2.StatusCode)
	}
}

func Test_ClientDecline_WithReason(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	p := seedProposal(t, db, models.ProposalSent, number)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	req := httptest.NewRequest("POST", "/proposals/"+p.PublicToken.String()+"/decline",
		strings.NewReader(`{"reason": "Over budget for this season"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("decline got %d", resp.StatusCode)
	}

	var got models.Proposal
	if err := db.First(&got, "id = ?", p.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != models.ProposalDeclined {
		t.Fatalf("status = %s, want declined", got.Status)
	}

	var act models.ProposalActivity
	if err := db.First(&act, "proposal_id = ? AND type = ?", p.ID, models.ActivityDeclined).Error; err != nil {
		t.Fatal(err)
	}
	if act.Metadata["reason"] != "Over budget for this season" {
		t.Fatalf("reason not recorded: %v", act.Metadata)
	}
}

func Test_ClientRespond_RejectsDraft(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	p := seedProposal(t, db, models.ProposalDraft, number)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	resp, _ := app.Test(httptest.NewRequest("POST", "/proposals/"+p.PublicToken.String()+"/accept", nil))
	if resp.StatusCode != 409 {
		t.Fatalf("accept on draft got %d, want 409", resp.StatusCode)
	}
}

// Declined proposal gets countered, the counter is sent, the client accepts
// the counter. The end-to-end negotiation round-trip.
func Test_DeclineThenCounterThenAccept(t *testing.T) {
	db := openTestDB(t)
	number := fmt.Sprintf("PRO-%d-0001", time.Now().Year())
	orig := seedProposal(t, db, models.ProposalViewed, number)
	app := newTestApp(newHandler(db), uuid.New(), string(models.RoleAdmin))

	resp, _ := app.Test(httptest.NewRequest("POST", "/proposals/"+orig.PublicToken.String()+"/decline", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("decline got %d", resp.StatusCode)
	}

	code, out := postCounter(t, db, "/api/proposals/"+orig.ID.String()+"/counter",
		`{"discount_percentage": 20, "send_immediately": true}`)
	if code != 201 {
		t.Fatalf("counter got %d", code)
	}

	accept := httptest.NewRequest("POST", "/proposals/"+out.Data.UUID.String()+"/accept", nil)
	respAccept, _ := app.Test(accept)
	if respAccept.StatusCode != 200 {
		t.Fatalf("accept counter got %d", respAccept.StatusCode)
	}

	var counter models.Proposal
	if err := db.First(&counter, "id = ?", out.Data.CounterProposalID).Error; err != nil {
		t.Fatal(err)
	}
	if counter.Status != models.ProposalAccepted {
		t.Fatalf("counter status = %s, want accepted", counter.Status)
	}
	if counter.Total != 400 {
		t.Fatalf("counter total = %v, want 400", counter.Total)
	}

	// The original keeps its declined state untouched.
	var kept models.Proposal
	if err := db.First(&kept, "id = ?", orig.ID).Error; err != nil {
		t.Fatal(err)
	}
	if kept.Status != models.ProposalDeclined {
		t.Fatalf("original status = %s, want declined", kept.Status)
	}
}
