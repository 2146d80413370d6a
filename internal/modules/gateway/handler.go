package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/pkg/response"
)

// RegisterRoutes mounts socket.io and the stats endpoint.
func RegisterRoutes(rg *gin.RouterGroup, hub *Hub, authMW gin.HandlerFunc) {
	handler := gin.WrapH(hub.Handler())
	rg.Any("/socket.io", handler)
	rg.Any("/socket.io/*any", handler)

	rg.GET("/gateway/stats", authMW, func(c *gin.Context) {
		response.OK(c, gin.H{
			"public":  hub.ClientCount(RoomPublic),
			"admin":   hub.ClientCount(RoomAdmin),
			"total":   hub.ClientCount(""),
			"diaries": len(hub.WatchedDiaries()),
		})
	})
}
