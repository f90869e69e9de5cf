package restapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/app/service"
	"chain_sync/internal/domain/entity"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// acceptWindow is how long a trigger waits for an immediate answer
// (lock held, not implemented) before replying 202.
const acceptWindow = 200 * time.Millisecond

type errorResponse struct {
	Error string `json:"error"`
}

type triggerResponse struct {
	Adapter   string `json:"adapter"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
}

// SyncHandler exposes manual triggers for the registered syncers.
type SyncHandler struct {
	base    context.Context
	syncers map[string]port.Syncer
	logger  *zap.Logger
}

// NewSyncHandler creates the handler. base bounds the background runs it starts.
func NewSyncHandler(base context.Context, syncers []port.Syncer, logger *zap.Logger) *SyncHandler {
	byName := make(map[string]port.Syncer, len(syncers))
	for _, s := range syncers {
		byName[s.Name()] = s
	}
	return &SyncHandler{base: base, syncers: byName, logger: logger}
}

func (h *SyncHandler) ListAdapters(c *gin.Context) {
	names := make([]string, 0, len(h.syncers))
	for name := range h.syncers {
		names = append(names, name)
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"adapters": names})
}

func (h *SyncHandler) SyncTokens(c *gin.Context) {
	h.trigger(c, "tokens", func(s port.Syncer) func(context.Context) error { return s.SyncTokens })
}

func (h *SyncHandler) SyncHolders(c *gin.Context) {
	h.trigger(c, "holders", func(s port.Syncer) func(context.Context) error { return s.SyncHolders })
}

// SyncTransaction runs synchronously; a single group is cheap.
func (h *SyncHandler) SyncTransaction(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	txs, ok := s.(port.TransactionLookup)
	if !ok {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "adapter does not sync single transactions"})
		return
	}

	txID := c.Param("txid")
	if err := txs.SyncTransaction(c.Request.Context(), txID); err != nil {
		h.logger.Warn("Single transaction sync failed",
			zap.String("adapter", s.Name()), zap.String("tx", txID), zap.Error(err))
		c.JSON(statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"adapter": s.Name(), "transaction": txID, "status": "synced"})
}

func (h *SyncHandler) lookup(c *gin.Context) (port.Syncer, bool) {
	name := c.Param("name")
	s, ok := h.syncers[name]
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "unknown adapter " + name})
		return nil, false
	}
	return s, true
}

func (h *SyncHandler) trigger(c *gin.Context, op string, pick func(port.Syncer) func(context.Context) error) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	run := pick(s)

	done := make(chan error, 1)
	go func() {
		err := run(h.base)
		if err != nil && !errors.Is(err, service.ErrSyncInProgress) {
			h.logger.Error("Triggered sync failed",
				zap.String("adapter", s.Name()), zap.String("operation", op), zap.Error(err))
		}
		done <- err
	}()

	resp := triggerResponse{Adapter: s.Name(), Operation: op}
	select {
	case err := <-done:
		if err != nil {
			c.JSON(statusFor(err), errorResponse{Error: err.Error()})
			return
		}
		resp.Status = "finished"
		c.JSON(http.StatusOK, resp)
	case <-time.After(acceptWindow):
		resp.Status = "accepted"
		c.JSON(http.StatusAccepted, resp)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, entity.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
