package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// The watch polls these endpoints after login when the version counters in
// the login response exceed its cached values. Packages are empty: nothing
// is served for download, the probes just have to succeed.

func (s *Server) getApps(c *gin.Context) {
	apps := []gin.H{
		{
			"id":              1,
			"name":            "聊天",
			"package_name":    "com.sogou.teemo.watch.chat",
			"version":         "1",
			"version_format":  "1",
			"pkg_url":         "",
			"status":          3,
			"content_type":    1,
			"display_version": "1",
		},
		{
			"id":           2,
			"name":         "电话",
			"package_name": "com.sogou.teemo.watch.phone",
			"version":      "1",
			"pkg_url":      "",
			"status":       3,
		},
	}
	c.JSON(http.StatusOK, gin.H{
		"code":   200,
		"status": 200,
		"msg":    "success",
		"data": gin.H{
			"apps": gin.H{
				"data":        apps,
				"page_index":  1,
				"page_size":   20,
				"total_count": len(apps),
			},
			"installed_apps": []gin.H{},
		},
	})
}

func (s *Server) getThemeInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": gin.H{"content": "成功", "notice": ""},
		"data":    gin.H{"packages": []gin.H{}, "version": time.Now().Unix()},
	})
}

func (s *Server) getDialInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": gin.H{"content": "成功", "notice": ""},
		"data":    gin.H{"packages": []gin.H{}, "version": time.Now().Unix()},
	})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": gin.H{"content": "已经是最新版本", "notice": ""},
		"data":    gin.H{},
	})
}

func (s *Server) getEmoticonInfo(c *gin.Context) {
	packageID, err := strconv.Atoi(c.DefaultQuery("package", "1"))
	if err != nil {
		packageID = 1
	}
	c.JSON(http.StatusOK, gin.H{
		"message": gin.H{"content": "成功", "notice": ""},
		"data": gin.H{
			"package_id": packageID,
			"name":       "默认表情",
			"version":    time.Now().Unix(),
			"emoticons":  []gin.H{},
		},
	})
}

// passportLogin stubs the phone-app account service: a fresh session token,
// profile and binding marked complete, client fields echoed back.
func (s *Server) passportLogin(c *gin.Context) {
	stamp := c.Query("stamp")
	if stamp == "" {
		stamp = c.Query("timestamp")
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "登录成功",
		"data": gin.H{
			"token":   "fake-token-" + uuid.NewString(),
			"user_id": "fake_user_from_server_001",

			"profile_completed": 1,
			"timo_binded":       1,

			"client_stamp":  stamp,
			"client_udid":   c.Query("udid"),
			"client_sgid":   c.Query("sgid"),
			"client_device": "android",

			"service_stamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
			"client_token":  "",
		},
	})
}
