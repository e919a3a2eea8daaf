package http

import (
	"net/http"

	"github.com/dkeye/Stream/internal/adapters/presence"
	"github.com/dkeye/Stream/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type PeerResponse struct {
	ID     domain.PeerID `json:"id"`
	Online bool          `json:"online"`
}

// PeerHandler answers GET /api/peers/:id from the presence store.
func PeerHandler(store presence.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := domain.PeerID(c.Param("id"))
		if err := id.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		online, err := store.Exists(c.Request.Context(), id)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("peer", string(id)).Msg("presence lookup")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
			return
		}
		c.JSON(http.StatusOK, PeerResponse{ID: id, Online: online})
	}
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
