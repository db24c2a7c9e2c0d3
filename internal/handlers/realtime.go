package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/roadwatch/roadwatch/internal/realtime"
	"github.com/roadwatch/roadwatch/pkg/errors"
	"github.com/roadwatch/roadwatch/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into gateway websocket sessions. Identity is
// optional; the gateway demotes invalid tokens to anonymous connections.
type RealtimeHandler struct {
	gateway *realtime.Gateway
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(gateway *realtime.Gateway) *RealtimeHandler {
	return &RealtimeHandler{gateway: gateway}
}

// Stream hands the request to the gateway.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h == nil || h.gateway == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}
	h.gateway.Serve(c.Writer, c.Request)
}
