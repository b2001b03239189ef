package service

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tallyapp/tally/internal/storage"
)

// BillHandler serves read-only bill projections. Reads do not take the
// per-bill lock; they see the latest committed version.
type BillHandler struct {
	store storage.Store
}

// NewBillHandler creates a new BillHandler.
func NewBillHandler(store storage.Store) *BillHandler {
	return &BillHandler{store: store}
}

// Get handles GET /v1/bills/:id.
func (h *BillHandler) Get(c *gin.Context) {
	bill, err := h.store.GetBill(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeBillError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBillResponse(bill))
}

// GetByCode handles GET /v1/bills/by-code/:code.
func (h *BillHandler) GetByCode(c *gin.Context) {
	bill, err := h.store.GetBillByShareCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeBillError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBillResponse(bill))
}

func writeBillError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrBillNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "bill not found"})
		return
	}
	slog.Error("Failed to load bill", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bill"})
}
