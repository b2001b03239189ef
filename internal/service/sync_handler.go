package service

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tallyapp/tally/internal/middleware"
	"github.com/tallyapp/tally/internal/models"
	"github.com/tallyapp/tally/internal/storage"
	"github.com/tallyapp/tally/internal/syncer"
)

// SyncHandler exposes the delta sync endpoint.
type SyncHandler struct {
	coordinator *syncer.Coordinator
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(coordinator *syncer.Coordinator) *SyncHandler {
	return &SyncHandler{coordinator: coordinator}
}

// Sync handles POST /v1/bills/sync.
func (h *SyncHandler) Sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sync payload: " + err.Error()})
		return
	}

	delta := req.toDelta(middleware.UserID(c))
	result, err := h.coordinator.Sync(c.Request.Context(), delta)
	if err != nil {
		writeSyncError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSyncResponse(result))
}

// writeSyncError maps the sync error taxonomy onto HTTP statuses. Version
// conflicts get the dedicated rejection body so clients can re-fetch
// against the authoritative version.
func writeSyncError(c *gin.Context, err error) {
	var (
		conflict *syncer.VersionConflictError
		refErr   *syncer.RefIntegrityError
		valErr   *models.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, conflictResponse{
			Rejected:       true,
			CurrentVersion: conflict.CurrentVersion,
			Reason:         conflict.Error(),
		})
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error()})
	case errors.As(err, &refErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": refErr.Error()})
	case errors.Is(err, storage.ErrBillNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "bill not found"})
	default:
		slog.Error("Sync failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
	}
}
