package editor

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/middleware"
	"github.com/mx-space/diary/internal/pkg/response"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler { return &Handler{mgr: mgr} }

type openDTO struct {
	DiaryID string `json:"diaryId" binding:"required"`
}

type gotoDTO struct {
	Index int `json:"index"`
}

type reorderDTO struct {
	CardID      string `json:"cardId"      binding:"required"`
	TargetIndex int    `json:"targetIndex"`
}

type travelResult struct {
	State   State `json:"state"`
	Applied bool  `json:"applied"`
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/editor/sessions", authMW)
	g.POST("", h.open)
	g.GET("/:sid", h.state)
	g.DELETE("/:sid", h.close)
	g.POST("/:sid/edit", h.edit)
	g.POST("/:sid/next", h.simple(func(s *Session, _ context.Context) (State, error) { return s.Next() }))
	g.POST("/:sid/prev", h.simple(func(s *Session, _ context.Context) (State, error) { return s.Prev() }))
	g.POST("/:sid/goto", h.gotoCard)
	g.POST("/:sid/add", h.simple((*Session).AddCard))
	g.POST("/:sid/duplicate", h.simple((*Session).DuplicateCard))
	g.POST("/:sid/delete", h.simple((*Session).DeleteCard))
	g.POST("/:sid/reorder", h.reorder)
	g.POST("/:sid/undo", h.travel((*Session).Undo))
	g.POST("/:sid/redo", h.travel((*Session).Redo))
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	s, err := h.mgr.Get(c.Param("sid"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return s, true
}

// POST /editor/sessions
func (h *Handler) open(c *gin.Context) {
	var dto openDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	_, st, err := h.mgr.Open(c.Request.Context(), dto.DiaryID, middleware.CurrentSessionID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, st)
}

// GET /editor/sessions/:sid
func (h *Handler) state(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, s.State())
}

// DELETE /editor/sessions/:sid
func (h *Handler) close(c *gin.Context) {
	if err := h.mgr.Close(c.Param("sid")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /editor/sessions/:sid/edit
func (h *Handler) edit(c *gin.Context) {
	var dto TextEdit
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	st, err := s.EditText(dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// POST /editor/sessions/:sid/goto
func (h *Handler) gotoCard(c *gin.Context) {
	var dto gotoDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	st, err := s.Goto(dto.Index)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// POST /editor/sessions/:sid/reorder
func (h *Handler) reorder(c *gin.Context) {
	var dto reorderDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	st, err := s.Reorder(c.Request.Context(), dto.CardID, dto.TargetIndex)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// simple adapts a body-less session operation.
func (h *Handler) simple(op func(*Session, context.Context) (State, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := h.session(c)
		if !ok {
			return
		}
		st, err := op(s, c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, st)
	}
}

func (h *Handler) travel(op func(*Session, context.Context) (State, bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := h.session(c)
		if !ok {
			return
		}
		st, applied, err := op(s, c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, travelResult{State: st, Applied: applied})
	}
}
