package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/production-planner/internal/http/response"
	"github.com/yungbote/production-planner/internal/platform/logger"
	"github.com/yungbote/production-planner/internal/realtime"
)

type RealtimeHandler struct {
	log       *logger.Logger
	hub       *realtime.Hub
	manifests ManifestService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub, manifests ManifestService) *RealtimeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub, manifests: manifests}
}

// GET /api/manifests/:id/events
//
// Streams status changes of one manifest until the client goes away.
func (h *RealtimeHandler) ManifestEvents(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.manifests.Get(c.Request.Context(), owner, id); err != nil {
		response.RespondPlannerError(c, err)
		return
	}

	client := h.hub.NewClient(owner)
	h.hub.AddChannel(client, realtime.ManifestChannel(id))
	h.log.Debug("SSE stream open", "client_id", client.ID, "manifest_id", id, "user_id", owner)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("SSE stream closed", "client_id", client.ID, "manifest_id", id)
}
