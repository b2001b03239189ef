package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tallyapp/tally/internal/middleware"
	"github.com/tallyapp/tally/internal/models"
	"github.com/tallyapp/tally/internal/settle"
	"github.com/tallyapp/tally/internal/storage"
	"github.com/tallyapp/tally/internal/syncer"
)

// errTransferNotMarkable reports a toggle for a pair the current plan does
// not pay anything between.
var errTransferNotMarkable = errors.New("no transfer between these members in the current plan")

// errMemberNotFound reports a reference to a member the bill does not have.
var errMemberNotFound = errors.New("member not found")

// SettlementHandler serves the settlement projection and the
// settled-transfer toggle.
type SettlementHandler struct {
	store       storage.Store
	coordinator *syncer.Coordinator
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(store storage.Store, coordinator *syncer.Coordinator) *SettlementHandler {
	return &SettlementHandler{store: store, coordinator: coordinator}
}

type balanceWire struct {
	MemberID  string  `json:"memberId"`
	Name      string  `json:"name"`
	TotalPaid float64 `json:"totalPaid"`
	TotalOwed float64 `json:"totalOwed"`
	Balance   float64 `json:"balance"`
}

type transferWire struct {
	FromMemberID string  `json:"fromMemberId"`
	ToMemberID   string  `json:"toMemberId"`
	Amount       float64 `json:"amount"`
	Settled      bool    `json:"settled"`
	// SettledAmount is the snapshot taken when the transfer was marked
	// paid; it may differ from Amount if balances moved since.
	SettledAmount float64 `json:"settledAmount,omitempty"`
}

type settlementResponse struct {
	TotalAmount    float64        `json:"totalAmount"`
	TotalWithFees  float64        `json:"totalWithFees"`
	MemberBalances []balanceWire  `json:"memberBalances"`
	Transfers      []transferWire `json:"transfers"`
	Version        int64          `json:"version"`
}

// Calculate handles GET /v1/bills/:id/settlement. Read-only; computed on
// demand from the latest committed state.
func (h *SettlementHandler) Calculate(c *gin.Context) {
	bill, err := h.store.GetBill(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeBillError(c, err)
		return
	}

	balances := settle.Compute(bill)
	transfers := settle.Plan(balances)
	totalAmount, totalWithFees := settle.Totals(bill)

	resp := settlementResponse{
		TotalAmount:    totalAmount,
		TotalWithFees:  totalWithFees,
		MemberBalances: []balanceWire{},
		Transfers:      []transferWire{},
		Version:        bill.Version,
	}
	for _, b := range balances {
		resp.MemberBalances = append(resp.MemberBalances, balanceWire{
			MemberID:  b.MemberID,
			Name:      b.Name,
			TotalPaid: b.TotalPaid,
			TotalOwed: b.TotalOwed,
			Balance:   b.Balance,
		})
	}
	planned := make(map[string]bool, len(transfers))
	for _, t := range transfers {
		planned[t.FromMemberID+"\x00"+t.ToMemberID] = true
		tw := transferWire{
			FromMemberID: t.FromMemberID,
			ToMemberID:   t.ToMemberID,
			Amount:       t.Amount,
		}
		if st := bill.FindSettled(t.FromMemberID, t.ToMemberID); st != nil {
			tw.Settled = true
			tw.SettledAmount = st.Amount
		}
		resp.Transfers = append(resp.Transfers, tw)
	}
	// Markers whose pair dropped out of the plan stay visible with their
	// snapshot and a zero live amount. A transfer the user marked paid is
	// never silently dropped, even after balances move on.
	for _, st := range bill.SettledTransfers {
		if planned[st.FromMemberID+"\x00"+st.ToMemberID] {
			continue
		}
		resp.Transfers = append(resp.Transfers, transferWire{
			FromMemberID:  st.FromMemberID,
			ToMemberID:    st.ToMemberID,
			Settled:       true,
			SettledAmount: st.Amount,
		})
	}
	c.JSON(http.StatusOK, resp)
}

type toggleRequest struct {
	FromMemberID string `json:"fromMemberId" binding:"required"`
	ToMemberID   string `json:"toMemberId" binding:"required"`
}

// Toggle handles POST /v1/bills/:id/settlement/toggle. Setting a marker
// snapshots the currently computed transfer amount; clearing just removes
// the marker. Either way the bill mutates, so this runs under the same
// serialization and version bump as a sync.
func (h *SettlementHandler) Toggle(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid toggle payload: " + err.Error()})
		return
	}

	billID := c.Param("id")
	actor := middleware.UserID(c)
	bill, err := h.coordinator.Mutate(c.Request.Context(), billID, actor, func(bill *models.Bill) (bool, error) {
		if bill.FindMember(req.FromMemberID) == nil || bill.FindMember(req.ToMemberID) == nil {
			return false, errMemberNotFound
		}

		if existing := bill.FindSettled(req.FromMemberID, req.ToMemberID); existing != nil {
			kept := bill.SettledTransfers[:0]
			for _, st := range bill.SettledTransfers {
				if st.FromMemberID != req.FromMemberID || st.ToMemberID != req.ToMemberID {
					kept = append(kept, st)
				}
			}
			bill.SettledTransfers = kept
			return true, nil
		}

		amount, ok := plannedAmount(bill, req.FromMemberID, req.ToMemberID)
		if !ok {
			return false, errTransferNotMarkable
		}
		bill.SettledTransfers = append(bill.SettledTransfers, models.SettledTransfer{
			FromMemberID: req.FromMemberID,
			ToMemberID:   req.ToMemberID,
			Amount:       amount,
			SettledAt:    time.Now().Unix(),
		})
		return true, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errTransferNotMarkable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, errMemberNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			writeBillError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"version": bill.Version})
}

func plannedAmount(bill *models.Bill, fromID, toID string) (float64, bool) {
	for _, t := range settle.Plan(settle.Compute(bill)) {
		if t.FromMemberID == fromID && t.ToMemberID == toID {
			return t.Amount, true
		}
	}
	return 0, false
}
