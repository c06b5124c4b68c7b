package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"duel-arena/internal/auth"
	"duel-arena/internal/models"
	"duel-arena/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

type DuelHandler struct {
	duelService *services.DuelService
}

func NewDuelHandler(duelService *services.DuelService) *DuelHandler {
	return &DuelHandler{duelService: duelService}
}

// statusForError maps service errors onto HTTP statuses. Upstream failures
// (oracle, chain) surface as 502 so clients can tell them from their own
// mistakes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrMissingWallet):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrDeposit):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrChainCall),
		errors.Is(err, services.ErrOracleUnavailable),
		errors.Is(err, services.ErrPayout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("[DuelHandler] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// validSignature checks that a deposit reference is a plausible Solana
// transaction signature: base58, 64 bytes decoded.
func validSignature(sig string) bool {
	decoded, err := base58.Decode(sig)
	return err == nil && len(decoded) == 64
}

func duelUUIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duel id"})
		return uuid.Nil, false
	}
	return id, true
}

// CreateDuel handles POST /api/duels
func (h *DuelHandler) CreateDuel(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req models.CreateDuelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validSignature(req.Signature) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature is not a valid transaction reference"})
		return
	}

	duel, err := h.duelService.CreateDuel(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"duel": duel})
}

// JoinDuel handles POST /api/duels/:id/join
func (h *DuelHandler) JoinDuel(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	duelID, ok := duelUUIDParam(c)
	if !ok {
		return
	}

	var req models.JoinDuelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validSignature(req.Signature) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature is not a valid transaction reference"})
		return
	}

	duel, err := h.duelService.JoinDuel(c.Request.Context(), duelID, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duel": duel})
}

// CancelDuel handles POST /api/duels/:id/cancel
func (h *DuelHandler) CancelDuel(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	duelID, ok := duelUUIDParam(c)
	if !ok {
		return
	}

	duel, err := h.duelService.CancelDuel(c.Request.Context(), duelID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duel": duel})
}

// ClaimWinnings handles POST /api/duels/:id/claim
func (h *DuelHandler) ClaimWinnings(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	duelID, ok := duelUUIDParam(c)
	if !ok {
		return
	}

	result, err := h.duelService.ClaimWinnings(c.Request.Context(), duelID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// GetDuel handles GET /api/duels/:id
func (h *DuelHandler) GetDuel(c *gin.Context) {
	duelID, ok := duelUUIDParam(c)
	if !ok {
		return
	}

	duel, err := h.duelService.GetDuelByID(c.Request.Context(), duelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duel": duel})
}

// GetDuelResult handles GET /api/duels/:id/result
func (h *DuelHandler) GetDuelResult(c *gin.Context) {
	duelID, ok := duelUUIDParam(c)
	if !ok {
		return
	}

	result, err := h.duelService.GetDuelResult(c.Request.Context(), duelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// GetRunningDuels handles GET /api/duels
func (h *DuelHandler) GetRunningDuels(c *gin.Context) {
	limit := paginationInt(c, "limit", 50, 200)

	duels, err := h.duelService.GetRunningDuels(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duels": duels})
}

// GetAvailableDuels handles GET /api/duels/available
func (h *DuelHandler) GetAvailableDuels(c *gin.Context) {
	limit := paginationInt(c, "limit", 50, 200)
	offset := paginationInt(c, "offset", 0, 1<<30)

	duels, total, err := h.duelService.GetAvailableDuels(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duels": duels, "total": total})
}

// GetUserDuels handles GET /api/duels/user/:userId
func (h *DuelHandler) GetUserDuels(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	limit := paginationInt(c, "limit", 50, 200)
	offset := paginationInt(c, "offset", 0, 1<<30)

	duels, total, err := h.duelService.GetUserDuels(c.Request.Context(), uint(userID), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"duels": duels, "total": total})
}

// GetStatistics handles GET /api/duels/stats for the authenticated player.
func (h *DuelHandler) GetStatistics(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	stats, err := h.duelService.GetPlayerStatistics(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// GetConfig handles GET /api/duels/config
func (h *DuelHandler) GetConfig(c *gin.Context) {
	cfg := h.duelService.Config()
	c.JSON(http.StatusOK, gin.H{
		"fee_percent":         cfg.FeePercent,
		"duration_seconds":    int64(cfg.DuelDuration.Seconds()),
		"countdown_seconds":   int64(cfg.CountdownDelay.Seconds()),
		"pending_ttl_seconds": int64(cfg.PendingTTL.Seconds()),
		"default_symbol":      cfg.DefaultSymbol,
	})
}

func paginationInt(c *gin.Context, key string, def, max int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
