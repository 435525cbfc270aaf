package relay

import (
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/lvstream/internal/liveview"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Relay) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		state := s.state()
		status := http.StatusOK
		if state != liveview.Connected {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":      state == liveview.Connected,
			"connection": state.String(),
			"uptime":     time.Since(s.Appeared).String(),
			"service":    s.ID,
			"version":    "0.0.1",
		})
	})

	s.router.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Snapshot())
	})

	s.router.GET("/frame.jpg", func(c *gin.Context) {
		img, ok := s.latestImage()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no image received"})
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Header("X-Image-Width", strconv.FormatUint(uint64(img.Width), 10))
		c.Header("X-Image-Height", strconv.FormatUint(uint64(img.Height), 10))
		c.Data(http.StatusOK, "image/jpeg", img.ImageData)
	})

	s.router.GET("/focus", func(c *gin.Context) {
		view, ok := s.latestFocus()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no focus regions received"})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	s.router.GET("/playback", func(c *gin.Context) {
		view, ok := s.latestPlayback()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no playback status received"})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	s.router.GET("/ws", gin.WrapH(s.hub))
}
