package http

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avekas/parley/internal/domain"
)

const maxUploadBytes = 10 << 20 // 10 MiB

// Upload accepts a multipart image, verifies the actual content type
// (not the client-supplied one), stores the file, and pushes an image
// message through the same gate -> persist -> broadcast path as text.
func (h *Handlers) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	room := roomParam(c)
	user := identity(c)

	// Authorize before touching the file so a muted or banned sender
	// costs nothing.
	if err := h.Orch.Gate.AuthorizeSend(ctx, room, user); err != nil {
		abortWith(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		abortWith(c, err)
		return
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !isImage(mt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only image uploads are allowed"})
		return
	}

	if err := os.MkdirAll(h.Cfg.UploadDir, 0o755); err != nil {
		abortWith(c, err)
		return
	}
	name := fmt.Sprintf("%s%s", uuid.NewString(), mt.Extension())
	dst := filepath.Join(h.Cfg.UploadDir, name)
	if err := c.SaveUploadedFile(fileHeader, dst); err != nil {
		abortWith(c, err)
		return
	}

	msg, err := h.Orch.SendMessage(ctx, room, user, domain.MessageImage, "/uploads/"+name)
	if err != nil {
		// The broadcast path refused; don't leave the orphan on disk.
		_ = os.Remove(dst)
		abortWith(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(room)).Str("file", name).Msg("image uploaded")
	c.JSON(http.StatusCreated, msg)
}

func isImage(mt *mimetype.MIME) bool {
	return strings.HasPrefix(mt.String(), "image/")
}
