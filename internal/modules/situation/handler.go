package situation

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	s := rg.Group("/situations", authMW)
	s.GET("", h.list)
	s.POST("", h.create)
	s.GET("/tree", h.tree)
	s.POST("/import", h.importOutline)
	s.GET("/:id", h.get)
	s.PATCH("/:id", h.update)
	s.DELETE("/:id", h.delete)
	s.POST("/:id/before", h.addBefore)

	b := rg.Group("/before", authMW)
	b.PATCH("/:id", h.updateBefore)
	b.DELETE("/:id", h.deleteBefore)
	b.POST("/:id/after", h.addAfter)

	a := rg.Group("/after", authMW)
	a.PATCH("/:id", h.updateAfter)
	a.DELETE("/:id", h.deleteAfter)
}

// GET /situations
func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.ListSituations(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// POST /situations
func (h *Handler) create(c *gin.Context) {
	var dto TitleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sit, err := h.svc.CreateSituation(c.Request.Context(), dto.Title)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sit)
}

// GET /situations/tree
func (h *Handler) tree(c *gin.Context) {
	trees, err := h.svc.Tree(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, trees)
}

// POST /situations/import
// Accepts {"text": "..."} or a raw text/markdown body.
func (h *Handler) importOutline(c *gin.Context) {
	var src string
	if c.ContentType() == "application/json" {
		var dto ImportDTO
		if err := c.ShouldBindJSON(&dto); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		src = dto.Text
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxImportSize+1))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		src = string(body)
	}
	res, err := h.svc.Import(c.Request.Context(), src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// GET /situations/:id
func (h *Handler) get(c *gin.Context) {
	tree, err := h.svc.TreeOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tree)
}

// PATCH /situations/:id
func (h *Handler) update(c *gin.Context) {
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.UpdateSituation(c.Request.Context(), c.Param("id"), p); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /situations/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.DeleteSituation(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /situations/:id/before
func (h *Handler) addBefore(c *gin.Context) {
	var dto TextDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.AddBefore(c.Request.Context(), c.Param("id"), dto.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// PATCH /before/:id
func (h *Handler) updateBefore(c *gin.Context) {
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.UpdateBefore(c.Request.Context(), c.Param("id"), p); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /before/:id
func (h *Handler) deleteBefore(c *gin.Context) {
	if err := h.svc.DeleteBefore(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /before/:id/after
func (h *Handler) addAfter(c *gin.Context) {
	var dto TextDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.AddAfter(c.Request.Context(), c.Param("id"), dto.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// PATCH /after/:id
func (h *Handler) updateAfter(c *gin.Context) {
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.UpdateAfter(c.Request.Context(), c.Param("id"), p); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /after/:id
func (h *Handler) deleteAfter(c *gin.Context) {
	if err := h.svc.DeleteAfter(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
