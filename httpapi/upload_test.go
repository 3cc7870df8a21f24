package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadImage(t *testing.T, s *Server, query string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat/image/upload.do"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestChatImageUpload(t *testing.T) {
	s, _, _ := newTestServer(t)

	content := []byte("fake jpeg bytes")
	w := uploadImage(t, s, "?token="+testToken+"&sn="+testUDID+"&width=320&height=240", content)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int `json:"code"`
		Data struct {
			ImageID   string `json:"image_id"`
			OriginURL string `json:"origin_url"`
			Width     string `json:"width"`
			Height    string `json:"height"`
			Size      int64  `json:"size"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, "320", resp.Data.Width)
	assert.Equal(t, "240", resp.Data.Height)
	assert.Equal(t, int64(len(content)), resp.Data.Size)
	assert.Contains(t, resp.Data.OriginURL, "/media/image_messages/"+testUDID+"/")

	saved, err := os.ReadFile(filepath.Join(s.config.Media.Dir, resp.Data.ImageID))
	require.NoError(t, err)
	assert.Equal(t, content, saved)
}

func TestChatImageUpload_Auth(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := uploadImage(t, s, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = uploadImage(t, s, "?token=wrong&sn="+testUDID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = uploadImage(t, s, "?token="+testToken+"&sn=unknown", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatImageUpload_NoFile(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost,
		"/chat/image/upload.do?token="+testToken+"&sn="+testUDID, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
