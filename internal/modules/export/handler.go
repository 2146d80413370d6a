package export

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/pkg/response"
)

const csvContentType = "text/csv; charset=utf-8"

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/export", authMW)
	g.GET("/diaries.csv", h.diaries)
	g.GET("/diaries/:id/cards.csv", h.cards)
}

// GET /export/diaries.csv
func (h *Handler) diaries(c *gin.Context) {
	var buf bytes.Buffer
	n, err := h.svc.WriteDiaries(c.Request.Context(), &buf)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.svc.logger.Info("exported diaries", zap.Int("rows", n))
	attach(c, "diaries.csv", buf.Bytes())
}

// GET /export/diaries/:id/cards.csv
func (h *Handler) cards(c *gin.Context) {
	id := c.Param("id")
	var buf bytes.Buffer
	n, err := h.svc.WriteCards(c.Request.Context(), &buf, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.svc.logger.Info("exported cards", zap.String("diaryId", id), zap.Int("rows", n))
	attach(c, fmt.Sprintf("diary-%s-cards.csv", id), buf.Bytes())
}

func attach(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, csvContentType, data)
}
