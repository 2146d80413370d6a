package diary

import (
	"bytes"
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/middleware"
	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/pagination"
	"github.com/mx-space/diary/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Middlewares groups the extra handlers mounted in front of selected routes.
type Middlewares struct {
	Optional gin.HandlerFunc
	Create   []gin.HandlerFunc
	Unlock   []gin.HandlerFunc
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, mw Middlewares) {
	optional := mw.Optional
	if optional == nil {
		optional = func(c *gin.Context) { c.Next() }
	}

	d := rg.Group("/diaries")
	d.GET("", authMW, h.list)
	d.POST("", chain(authMW, mw.Create, h.create)...)
	d.GET("/:id", optional, h.get)
	d.PATCH("/:id", authMW, h.update)
	d.DELETE("/:id", authMW, h.delete)
	d.POST("/:id/read", h.read)
	d.POST("/:id/unlock", chain(optional, mw.Unlock, h.unlock)...)
	d.PUT("/:id/lock", authMW, h.lock)
	d.GET("/:id/metadata", h.metadata)
	d.GET("/:id/cards", optional, h.cards)
}

// createRequest accepts a single diary or an array of diaries.
type createRequest []CreateDiaryDTO

func (r *createRequest) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []CreateDiaryDTO
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*r = list
		return nil
	}
	var one CreateDiaryDTO
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*r = createRequest{one}
	return nil
}

// GET /diaries
func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	items, meta, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]diaryResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toResponse(d))
	}
	response.Paged(c, out, meta)
}

// POST /diaries
func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	created, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]diaryResponse, 0, len(created))
	for _, d := range created {
		out = append(out, toResponse(d))
	}
	response.Created(c, gin.H{"data": out})
}

// GET /diaries/:id
func (h *Handler) get(c *gin.Context) {
	d, cards, err := h.svc.Read(c.Request.Context(), c.Param("id"), middleware.UnlockToken(c), middleware.IsAuthenticated(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"diary": toResponse(*d), "cards": cards})
}

// PATCH /diaries/:id
func (h *Handler) update(c *gin.Context) {
	var dto UpdateDiaryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.Update(c.Request.Context(), c.Param("id"), dto); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /diaries/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /diaries/:id/read
func (h *Handler) read(c *gin.Context) {
	count, err := h.svc.IncrementReadingCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"cardReadingCount": count})
}

// POST /diaries/:id/unlock
func (h *Handler) unlock(c *gin.Context) {
	var dto PasswordDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, err := h.svc.Unlock(c.Request.Context(), c.Param("id"), dto.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"token": token, "expiresIn": int(UnlockTTL.Seconds())})
}

// PUT /diaries/:id/lock
func (h *Handler) lock(c *gin.Context) {
	var dto PasswordDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.svc.SetLock(c.Request.Context(), c.Param("id"), dto.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"locked": dto.Password != ""})
}

// GET /diaries/:id/metadata
func (h *Handler) metadata(c *gin.Context) {
	meta, err := h.svc.Metadata(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, meta)
}

// GET /diaries/:id/cards
func (h *Handler) cards(c *gin.Context) {
	_, cards, err := h.svc.Read(c.Request.Context(), c.Param("id"), middleware.UnlockToken(c), middleware.IsAuthenticated(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if cards == nil {
		cards = []models.Card{}
	}
	response.OK(c, cards)
}

func chain(first gin.HandlerFunc, mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+2)
	out = append(out, first)
	out = append(out, mw...)
	return append(out, h)
}
