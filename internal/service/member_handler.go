package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tallyapp/tally/internal/middleware"
	"github.com/tallyapp/tally/internal/models"
	"github.com/tallyapp/tally/internal/storage"
	"github.com/tallyapp/tally/internal/syncer"
)

var (
	errAlreadyClaimed = errors.New("member is already claimed by another account")
	errNotClaimOwner  = errors.New("member is not claimed by this account")
)

// MemberHandler covers claiming: linking a bill member to a user account
// and reversing that link.
type MemberHandler struct {
	store       storage.Store
	coordinator *syncer.Coordinator
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(store storage.Store, coordinator *syncer.Coordinator) *MemberHandler {
	return &MemberHandler{store: store, coordinator: coordinator}
}

// Claim handles POST /v1/bills/:id/members/:memberId/claim. The member
// takes the account's display name; the previous name is retained so the
// claim can be reversed. At most one account may claim a member at a time.
func (h *MemberHandler) Claim(c *gin.Context) {
	userID := middleware.UserID(c)
	user, err := h.store.GetUserByID(c.Request.Context(), userID)
	if err != nil || user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown account"})
		return
	}

	memberID := c.Param("memberId")
	bill, err := h.coordinator.Mutate(c.Request.Context(), c.Param("id"), userID, func(bill *models.Bill) (bool, error) {
		m := bill.FindMember(memberID)
		if m == nil || m.Deleted {
			return false, errMemberNotFound
		}
		if m.LinkedUserID == userID {
			return false, nil // already claimed by this account
		}
		if m.LinkedUserID != "" {
			return false, errAlreadyClaimed
		}
		m.OriginalName = m.Name
		m.LinkedUserID = userID
		m.ClaimedAt = time.Now().Unix()
		m.Name = user.DisplayName
		return true, nil
	})
	if err != nil {
		writeClaimError(c, err)
		return
	}
	c.JSON(http.StatusOK, claimedMemberResponse(bill, memberID))
}

// Unclaim handles POST /v1/bills/:id/members/:memberId/unclaim, restoring
// the member's original name. Only the claiming account may reverse it.
func (h *MemberHandler) Unclaim(c *gin.Context) {
	userID := middleware.UserID(c)
	memberID := c.Param("memberId")
	bill, err := h.coordinator.Mutate(c.Request.Context(), c.Param("id"), userID, func(bill *models.Bill) (bool, error) {
		m := bill.FindMember(memberID)
		if m == nil || m.Deleted {
			return false, errMemberNotFound
		}
		if m.LinkedUserID == "" {
			return false, nil // nothing to reverse
		}
		if m.LinkedUserID != userID {
			return false, errNotClaimOwner
		}
		if m.OriginalName != "" {
			m.Name = m.OriginalName
		}
		m.OriginalName = ""
		m.LinkedUserID = ""
		m.ClaimedAt = 0
		return true, nil
	})
	if err != nil {
		writeClaimError(c, err)
		return
	}
	c.JSON(http.StatusOK, claimedMemberResponse(bill, memberID))
}

func claimedMemberResponse(bill *models.Bill, memberID string) gin.H {
	m := bill.FindMember(memberID)
	return gin.H{
		"version": bill.Version,
		"member": memberResponse{
			ID:           m.ID,
			Name:         m.Name,
			DisplayOrder: m.DisplayOrder,
			LinkedUserID: m.LinkedUserID,
			ClaimedAt:    m.ClaimedAt,
		},
	}
}

func writeClaimError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errAlreadyClaimed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errNotClaimOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		writeBillError(c, err)
	}
}
