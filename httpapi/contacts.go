package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"

	"github.com/watchgate/watchgate/server/push"
	"github.com/watchgate/watchgate/storage"
)

// authDevice resolves the device behind a phone-app request from its
// http_token and user_id (the baby_id handed out at login).
func (s *Server) authDevice(c *gin.Context) (*storage.Device, bool) {
	token := param(c, "token")
	babyID, err := strconv.ParseInt(param(c, "user_id"), 10, 64)
	if err != nil || token == "" {
		return nil, false
	}
	dev, err := s.store.DeviceByToken(c.Request.Context(), token, babyID)
	if err != nil {
		return nil, false
	}
	return dev, true
}

func (s *Server) addContact(c *gin.Context) {
	dev, ok := s.authDevice(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "message": "认证失败"})
		return
	}

	name := param(c, "name")
	phone := param(c, "phone")

	exists, err := s.store.ContactExistsByPhone(c.Request.Context(), dev.UDID, phone)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "服务器内部错误"})
		return
	}
	if exists {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "该号码已存在"})
		return
	}

	contact := storage.Contact{
		DeviceUDID:   dev.UDID,
		UserID:       time.Now().UnixMilli(),
		Name:         name,
		Phone:        phone,
		Ext:          parseExt(param(c, "ext")),
		ContactsType: storage.ContactTypeNormal,
		Auth:         7,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateContact(c.Request.Context(), contact); err != nil {
		s.logger.Error().Err(err).Str("udid", dev.UDID).Msg("contact create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "服务器内部错误"})
		return
	}

	s.logger.Info().
		Str("udid", dev.UDID).
		Int64("contact_id", contact.UserID).
		Str("name", name).
		Msg("contact added")

	s.notifyAddContact(dev.UDID, contact.UserID)

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "添加成功",
		"data":    gin.H{"id": contact.UserID},
	})
}

func (s *Server) updateContact(c *gin.Context) {
	dev, ok := s.authDevice(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "message": "认证失败或联系人不存在"})
		return
	}
	contactID, err := strconv.ParseInt(param(c, "id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "message": "认证失败或联系人不存在"})
		return
	}

	contact, err := s.store.ContactByUserID(c.Request.Context(), dev.UDID, contactID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"code": 403, "message": "认证失败或联系人不存在"})
		return
	}

	if v := param(c, "name"); v != "" {
		contact.Name = v
	}
	if v := param(c, "phone"); v != "" {
		contact.Phone = v
	}
	if v := param(c, "photo"); v != "" {
		contact.Photo = v
	}
	if v := param(c, "ext"); v != "" {
		contact.Ext = parseExt(v)
	}

	if err := s.store.UpdateContact(c.Request.Context(), *contact); err != nil {
		s.logger.Error().Err(err).Int64("contact_id", contactID).Msg("contact update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "服务器内部错误"})
		return
	}

	// Live sessions pick the change up on their next full sync.
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "更新成功", "data": gin.H{}})
}

func (s *Server) deleteContact(c *gin.Context) {
	dev, ok := s.authDevice(c)
	if !ok {
		// Answering 200 keeps the phone app from retrying forever.
		c.JSON(http.StatusOK, gin.H{"code": 200, "message": "联系人不存在，操作视为成功"})
		return
	}
	contactID, err := strconv.ParseInt(param(c, "id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 200, "message": "联系人不存在，操作视为成功"})
		return
	}

	if err := s.store.DeleteContact(c.Request.Context(), dev.UDID, contactID); err != nil {
		if err == storage.ErrNotFound {
			c.JSON(http.StatusOK, gin.H{"code": 200, "message": "联系人不存在，操作视为成功"})
			return
		}
		s.logger.Error().Err(err).Int64("contact_id", contactID).Msg("contact delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "服务器内部错误"})
		return
	}

	s.logger.Info().
		Str("udid", dev.UDID).
		Int64("contact_id", contactID).
		Msg("contact deleted")
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "删除成功", "data": gin.H{}})
}

// notifyAddContact publishes the event that turns into a TCP push. Failures
// are logged only: the watch still gets the contact on its next full sync.
func (s *Server) notifyAddContact(udid string, contactID int64) {
	ev, err := json.Marshal(push.Event{
		Command:   push.CommandAddContact,
		UDID:      udid,
		ContactID: jsoniter.RawMessage(strconv.FormatInt(contactID, 10)),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("push event marshal failed")
		return
	}
	if err := s.publisher.Publish(s.config.Nats.Subject, ev); err != nil {
		s.logger.Warn().Err(err).Str("udid", udid).Msg("push event publish failed")
		return
	}
	s.logger.Debug().Str("udid", udid).Int64("contact_id", contactID).Msg("push event published")
}

// parseExt decodes the JSON array the phone app sends for extra phone
// numbers. Malformed input degrades to an empty list.
func parseExt(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var ext []string
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		return []string{}
	}
	return ext
}
