package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tallyapp/tally/internal/auth"
	"github.com/tallyapp/tally/internal/events"
	"github.com/tallyapp/tally/internal/storage/sqlite"
	"github.com/tallyapp/tally/internal/syncer"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewRouter(RouterDeps{
		Store:         store,
		Coordinator:   syncer.NewCoordinator(store, events.NewMemoryPublisher()),
		Authenticator: auth.NewPasswordAuthenticator(store),
		Tokens:        auth.NewJWTManager("test-secret", time.Hour),
	})
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

// createBill syncs a fresh two-member bill with one expense and returns the
// sync response.
func createBill(t *testing.T, router *gin.Engine) syncResponse {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/v1/bills/sync", "", gin.H{
		"clientLocalId": "bill-local-1",
		"name":          "Dinner",
		"members": gin.H{
			"upsert": []gin.H{
				{"localId": "m-1", "name": "Alice"},
				{"localId": "m-2", "name": "Bob", "displayOrder": 1},
			},
		},
		"expenses": gin.H{
			"upsert": []gin.H{{
				"localId": "e-1", "name": "Pizza", "amount": 40.0,
				"paidByLocalId": "m-1", "participantLocalIds": []string{"m-1", "m-2"},
			}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp syncResponse
	decode(t, w, &resp)
	return resp
}

func registerUser(t *testing.T, router *gin.Engine, email, name string) authResponse {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/v1/auth/register", "", gin.H{
		"email": email, "displayName": name, "password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp authResponse
	decode(t, w, &resp)
	return resp
}

func TestSyncAndFetchBill(t *testing.T) {
	router := newTestRouter(t)

	created := createBill(t, router)
	if created.RemoteBillID == "" || created.ShareCode == "" {
		t.Fatalf("sync response missing identifiers: %+v", created)
	}
	if created.NewVersion != 1 {
		t.Errorf("newVersion = %d, want 1", created.NewVersion)
	}
	if len(created.IDMappings.Members) != 2 || len(created.IDMappings.Expenses) != 1 {
		t.Errorf("idMappings = %+v, want 2 members and 1 expense", created.IDMappings)
	}

	w := doJSON(t, router, http.MethodGet, "/v1/bills/"+created.RemoteBillID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var bill billResponse
	decode(t, w, &bill)
	if bill.Name != "Dinner" || len(bill.Members) != 2 || len(bill.Expenses) != 1 {
		t.Errorf("bill = %+v, want name and both entity lists", bill)
	}
	if bill.Members[0].Name != "Alice" {
		t.Errorf("members[0] = %+v, want Alice first by display order", bill.Members[0])
	}

	w = doJSON(t, router, http.MethodGet, "/v1/bills/by-code/"+created.ShareCode, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("by-code status = %d, body = %s", w.Code, w.Body.String())
	}
	var byCode billResponse
	decode(t, w, &byCode)
	if byCode.BillID != created.RemoteBillID {
		t.Errorf("by-code resolved %q, want %q", byCode.BillID, created.RemoteBillID)
	}
}

func TestSyncErrorStatuses(t *testing.T) {
	router := newTestRouter(t)
	created := createBill(t, router)

	tests := []struct {
		name       string
		body       gin.H
		wantStatus int
	}{
		{
			name: "stale base version",
			body: gin.H{
				"billId":      created.RemoteBillID,
				"baseVersion": 0,
				"members":     gin.H{"upsert": []gin.H{{"localId": "m-9", "name": "Eve"}}},
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "validation failure",
			body: gin.H{
				"billId":      created.RemoteBillID,
				"baseVersion": created.NewVersion,
				"expenses":    gin.H{"upsert": []gin.H{{"localId": "e-9", "name": "Bad", "amount": -1.0}}},
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unresolvable member reference",
			body: gin.H{
				"billId":      created.RemoteBillID,
				"baseVersion": created.NewVersion,
				"expenses": gin.H{"upsert": []gin.H{{
					"localId": "e-9", "name": "Orphan", "amount": 5.0, "paidByLocalId": "ghost",
				}}},
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown bill",
			body:       gin.H{"billId": "no-such-bill", "baseVersion": 0},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/bills/sync", "", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSyncConflictBody(t *testing.T) {
	router := newTestRouter(t)
	created := createBill(t, router)

	w := doJSON(t, router, http.MethodPost, "/v1/bills/sync", "", gin.H{
		"billId":      created.RemoteBillID,
		"baseVersion": 0,
		"members":     gin.H{"upsert": []gin.H{{"localId": "m-9", "name": "Eve"}}},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var resp conflictResponse
	decode(t, w, &resp)
	if !resp.Rejected || resp.CurrentVersion != created.NewVersion {
		t.Errorf("conflict body = %+v, want rejected with current version %d", resp, created.NewVersion)
	}
}

func TestSettlementEndpoint(t *testing.T) {
	router := newTestRouter(t)
	created := createBill(t, router)

	w := doJSON(t, router, http.MethodGet, "/v1/bills/"+created.RemoteBillID+"/settlement", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settlement status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp settlementResponse
	decode(t, w, &resp)
	if resp.TotalAmount != 40 || resp.TotalWithFees != 40 {
		t.Errorf("totals = %v/%v, want 40/40", resp.TotalAmount, resp.TotalWithFees)
	}
	if len(resp.Transfers) != 1 {
		t.Fatalf("got %d transfers, want 1: %+v", len(resp.Transfers), resp.Transfers)
	}
	tr := resp.Transfers[0]
	bobID := created.IDMappings.Members["m-2"]
	aliceID := created.IDMappings.Members["m-1"]
	if tr.FromMemberID != bobID || tr.ToMemberID != aliceID || tr.Amount != 20 {
		t.Errorf("transfer = %+v, want Bob pays Alice 20", tr)
	}
	if tr.Settled {
		t.Error("fresh transfer marked settled")
	}
}

func TestSettlementToggle(t *testing.T) {
	router := newTestRouter(t)
	created := createBill(t, router)
	aliceID := created.IDMappings.Members["m-1"]
	bobID := created.IDMappings.Members["m-2"]
	path := "/v1/bills/" + created.RemoteBillID + "/settlement/toggle"

	// Mark the planned transfer paid.
	w := doJSON(t, router, http.MethodPost, path, "", gin.H{
		"fromMemberId": bobID, "toMemberId": aliceID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body = %s", w.Code, w.Body.String())
	}
	var toggled struct {
		Version int64 `json:"version"`
	}
	decode(t, w, &toggled)
	if toggled.Version != created.NewVersion+1 {
		t.Errorf("version = %d, want %d", toggled.Version, created.NewVersion+1)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/bills/"+created.RemoteBillID+"/settlement", "", nil)
	var settlement settlementResponse
	decode(t, w, &settlement)
	if len(settlement.Transfers) != 1 || !settlement.Transfers[0].Settled {
		t.Errorf("transfers = %+v, want one settled", settlement.Transfers)
	}
	if settlement.Transfers[0].SettledAmount != 20 {
		t.Errorf("settledAmount = %v, want snapshot 20", settlement.Transfers[0].SettledAmount)
	}

	// Toggling again clears the marker.
	w = doJSON(t, router, http.MethodPost, path, "", gin.H{
		"fromMemberId": bobID, "toMemberId": aliceID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second toggle status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, http.MethodGet, "/v1/bills/"+created.RemoteBillID+"/settlement", "", nil)
	decode(t, w, &settlement)
	if settlement.Transfers[0].Settled {
		t.Error("marker not cleared by second toggle")
	}

	// A pair the plan pays nothing between cannot be marked.
	w = doJSON(t, router, http.MethodPost, path, "", gin.H{
		"fromMemberId": aliceID, "toMemberId": bobID,
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("reverse-pair toggle status = %d, want 422", w.Code)
	}

	// Unknown members are distinguished from unknown bills.
	w = doJSON(t, router, http.MethodPost, path, "", gin.H{
		"fromMemberId": "ghost", "toMemberId": aliceID,
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown member toggle status = %d, want 404", w.Code)
	}
}

// A marker whose pair drops out of the recomputed plan must stay visible
// with its snapshot instead of vanishing from the settlement response.
func TestSettlementKeepsMarkerAfterPlanDrift(t *testing.T) {
	router := newTestRouter(t)
	created := createBill(t, router)
	aliceID := created.IDMappings.Members["m-1"]
	bobID := created.IDMappings.Members["m-2"]
	expenseID := created.IDMappings.Expenses["e-1"]

	w := doJSON(t, router, http.MethodPost, "/v1/bills/"+created.RemoteBillID+"/settlement/toggle", "", gin.H{
		"fromMemberId": bobID, "toMemberId": aliceID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body = %s", w.Code, w.Body.String())
	}

	// Deleting the expense zeroes every balance; the plan no longer pays
	// anything between Bob and Alice.
	w = doJSON(t, router, http.MethodPost, "/v1/bills/sync", "", gin.H{
		"billId":      created.RemoteBillID,
		"baseVersion": created.NewVersion + 1,
		"expenses":    gin.H{"deletedIds": []string{expenseID}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("delete sync status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/v1/bills/"+created.RemoteBillID+"/settlement", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settlement status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp settlementResponse
	decode(t, w, &resp)
	if len(resp.Transfers) != 1 {
		t.Fatalf("got %d transfers, want the surviving marker: %+v", len(resp.Transfers), resp.Transfers)
	}
	tr := resp.Transfers[0]
	if tr.FromMemberID != bobID || tr.ToMemberID != aliceID {
		t.Errorf("marker pair = %s -> %s, want Bob -> Alice", tr.FromMemberID, tr.ToMemberID)
	}
	if !tr.Settled || tr.SettledAmount != 20 {
		t.Errorf("marker = %+v, want settled with snapshot 20", tr)
	}
	if tr.Amount != 0 {
		t.Errorf("live amount = %v, want 0 once nothing is owed", tr.Amount)
	}
}

func TestAuthEndpoints(t *testing.T) {
	router := newTestRouter(t)

	registered := registerUser(t, router, "alice@example.com", "Alice")
	if registered.Token == "" || registered.User.Email != "alice@example.com" {
		t.Fatalf("register response = %+v", registered)
	}

	// Duplicate email.
	w := doJSON(t, router, http.MethodPost, "/v1/auth/register", "", gin.H{
		"email": "alice@example.com", "displayName": "Alice2", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", w.Code)
	}

	// Weak password.
	w = doJSON(t, router, http.MethodPost, "/v1/auth/register", "", gin.H{
		"email": "bob@example.com", "displayName": "Bob", "password": "short",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("weak password status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var login authResponse
	decode(t, w, &login)

	w = doJSON(t, router, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email": "alice@example.com", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/auth/me", login.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", w.Code, w.Body.String())
	}
	var me userResponse
	decode(t, w, &me)
	if me.ID != registered.User.ID {
		t.Errorf("me = %+v, want registered user", me)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/auth/me", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated me status = %d, want 401", w.Code)
	}
}

func TestClaimAndUnclaim(t *testing.T) {
	router := newTestRouter(t)
	created := createBill(t, router)
	aliceID := created.IDMappings.Members["m-1"]
	base := "/v1/bills/" + created.RemoteBillID + "/members/" + aliceID

	owner := registerUser(t, router, "alice@example.com", "Alice Smith")
	other := registerUser(t, router, "mallory@example.com", "Mallory")

	// Claiming requires a session.
	w := doJSON(t, router, http.MethodPost, base+"/claim", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous claim status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, base+"/claim", owner.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body = %s", w.Code, w.Body.String())
	}
	var claimed struct {
		Version int64          `json:"version"`
		Member  memberResponse `json:"member"`
	}
	decode(t, w, &claimed)
	if claimed.Member.Name != "Alice Smith" {
		t.Errorf("claimed name = %q, want account display name", claimed.Member.Name)
	}
	if claimed.Member.LinkedUserID != owner.User.ID || claimed.Member.ClaimedAt == 0 {
		t.Errorf("claimed member = %+v, want linked to owner", claimed.Member)
	}

	// A second account cannot take over.
	w = doJSON(t, router, http.MethodPost, base+"/claim", other.Token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("competing claim status = %d, want 409", w.Code)
	}

	// Only the claim owner can reverse it.
	w = doJSON(t, router, http.MethodPost, base+"/unclaim", other.Token, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign unclaim status = %d, want 403", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, base+"/unclaim", owner.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unclaim status = %d, body = %s", w.Code, w.Body.String())
	}
	decode(t, w, &claimed)
	if claimed.Member.Name != "Alice" {
		t.Errorf("restored name = %q, want original Alice", claimed.Member.Name)
	}
	if claimed.Member.LinkedUserID != "" || claimed.Member.ClaimedAt != 0 {
		t.Errorf("member still linked after unclaim: %+v", claimed.Member)
	}

	// Claiming a member of a missing bill is a 404.
	w = doJSON(t, router, http.MethodPost, "/v1/bills/nope/members/"+aliceID+"/claim", owner.Token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing bill claim status = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
}
