package card

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/pkg/response"
)

// DiaryLookup reports apperr.NotFound for unknown diaries.
type DiaryLookup interface {
	Exists(ctx context.Context, diaryID string) error
}

type Handler struct {
	svc     *Service
	diaries DiaryLookup
}

func NewHandler(svc *Service, diaries DiaryLookup) *Handler {
	return &Handler{svc: svc, diaries: diaries}
}

// RegisterRoutes mounts the card write routes. Reading a diary's cards goes
// through the diary handler, which owns the lock check.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, createMW ...gin.HandlerFunc) {
	d := rg.Group("/diaries/:id", authMW)
	d.POST("/cards", chain(createMW, h.create)...)
	d.POST("/cards/reorder", h.reorder)
	d.POST("/cards/from-situation", chain(createMW, h.fromSituation)...)
	d.POST("/compact", h.compact)

	c := rg.Group("/cards", authMW)
	c.GET("/:id", h.get)
	c.PATCH("/:id", h.update)
	c.DELETE("/:id", h.delete)
	c.POST("/:id/duplicate", h.duplicate)
}

// POST /diaries/:id/cards
func (h *Handler) create(c *gin.Context) {
	var dto CreateCardDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	diaryID := c.Param("id")
	if err := h.diaries.Exists(c.Request.Context(), diaryID); err != nil {
		response.Error(c, err)
		return
	}
	topic := dto.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	card, err := h.svc.InsertAt(c.Request.Context(), diaryID, dto.AfterIndex, topic, dto.BodyText)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

// POST /diaries/:id/cards/reorder
func (h *Handler) reorder(c *gin.Context) {
	var dto ReorderDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cards, err := h.svc.Reorder(c.Request.Context(), c.Param("id"), dto.CardID, dto.TargetIndex)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cards)
}

// POST /diaries/:id/cards/from-situation
func (h *Handler) fromSituation(c *gin.Context) {
	var dto FromSituationDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	diaryID := c.Param("id")
	if err := h.diaries.Exists(c.Request.Context(), diaryID); err != nil {
		response.Error(c, err)
		return
	}
	card, err := h.svc.AppendFromSituation(c.Request.Context(), diaryID, dto.SituationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

// POST /diaries/:id/compact
func (h *Handler) compact(c *gin.Context) {
	cards, err := h.svc.Compact(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cards)
}

// GET /cards/:id
func (h *Handler) get(c *gin.Context) {
	card, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, card)
}

// PATCH /cards/:id
func (h *Handler) update(c *gin.Context) {
	var patch Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.Update(c.Request.Context(), c.Param("id"), patch); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /cards/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /cards/:id/duplicate
func (h *Handler) duplicate(c *gin.Context) {
	card, err := h.svc.Duplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

func chain(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, h)
}
