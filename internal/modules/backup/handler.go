package backup

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mx-space/diary/internal/pkg/response"
)

// maxUpload bounds archives accepted by the restore upload route.
const maxUpload = 256 << 20

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/backups", authMW)

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:filename", h.download)
	g.POST("/restore", h.uploadAndRestore)
	g.PATCH("/:filename", h.rollback)
	g.DELETE("", h.delete)
	g.DELETE("/:filename", h.deleteOne)
}

// GET /backups
func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// POST /backups
func (h *Handler) create(c *gin.Context) {
	art, err := h.svc.Create(c.Request.Context())
	if art == nil {
		response.Error(c, err)
		return
	}
	body := gin.H{"filename": art.Filename, "counts": art.Counts, "uploaded": h.svc.uploader != nil && err == nil}
	if err != nil {
		body["uploadError"] = err.Error()
	}
	response.Created(c, body)
}

// GET /backups/:filename
func (h *Handler) download(c *gin.Context) {
	data, err := h.svc.Read(c.Param("filename"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Param("filename")))
	c.Data(http.StatusOK, "application/zip", data)
}

// POST /backups/restore
func (h *Handler) uploadAndRestore(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return
	}
	if file.Size > maxUpload {
		response.BadRequest(c, "backup is too large")
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, err)
		return
	}
	counts, err := h.svc.Restore(c.Request.Context(), data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"counts": counts})
}

// PATCH /backups/:filename
func (h *Handler) rollback(c *gin.Context) {
	counts, err := h.svc.RestoreFile(c.Request.Context(), c.Param("filename"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"counts": counts})
}

// DELETE /backups?files=a.zip,b.zip
func (h *Handler) delete(c *gin.Context) {
	files := strings.TrimSpace(c.Query("files"))
	if files == "" {
		var body struct {
			Files string `json:"files"`
		}
		_ = c.ShouldBindJSON(&body)
		files = strings.TrimSpace(body.Files)
	}
	if files == "" {
		response.BadRequest(c, "missing files")
		return
	}
	for _, name := range strings.Split(files, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if err := h.svc.Remove(name); err != nil {
			response.Error(c, err)
			return
		}
	}
	response.NoContent(c)
}

// DELETE /backups/:filename
func (h *Handler) deleteOne(c *gin.Context) {
	if err := h.svc.Remove(c.Param("filename")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
