package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
)

// chatImageUpload receives a chat image from the watch. Authentication rides
// in the query string: the firmware passes its udid as "sn" next to the
// http_token from login.
func (s *Server) chatImageUpload(c *gin.Context) {
	token := c.Query("token")
	udid := c.Query("sn")
	if token == "" || udid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "Authentication required."})
		return
	}

	dev, err := s.store.DeviceByUDID(c.Request.Context(), udid)
	if err != nil || dev.HTTPToken != token {
		s.logger.Warn().Str("udid", udid).Msg("image upload authentication failed")
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "msg": "Invalid token or device."})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "No file uploaded."})
		return
	}

	rel := filepath.Join("image_messages", udid,
		time.Now().Format("20060102_150405")+"_"+filepath.Base(file.Filename))
	full := filepath.Join(s.config.Media.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "Storage error."})
		return
	}
	if err := c.SaveUploadedFile(file, full); err != nil {
		s.logger.Error().Err(err).Str("udid", udid).Msg("image save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "Storage error."})
		return
	}

	s.logger.Info().Str("udid", udid).Str("path", rel).Msg("chat image stored")

	url := "/media/" + filepath.ToSlash(rel)
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "Upload successful",
		"data": gin.H{
			"image_id":   rel,
			"small_url":  url,
			"large_url":  url,
			"origin_url": url,
			"height":     c.DefaultQuery("height", "0"),
			"width":      c.DefaultQuery("width", "0"),
			"size":       file.Size,
		},
	})
}
