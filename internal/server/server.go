package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mantonx/shoebox/internal/config"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/logger"
	"github.com/mantonx/shoebox/internal/modules/modulemanager"
)

// Server is the HTTP front of the application.
type Server struct {
	cfg    *config.Config
	router *gin.Engine
	http   *http.Server
}

// New builds the router: core endpoints plus every module's routes.
func New(cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		cfg:    cfg,
		router: router,
	}

	router.GET("/health", s.health)
	router.GET("/api/system/status", s.systemStatus)
	router.GET("/api/system/events", s.recentEvents)
	router.GET("/api/system/events/stats", s.eventStats)

	modulemanager.RegisterRoutes(router)
	return s
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down http server")
		return s.http.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String())
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// systemStatus reports host, memory, and library-disk figures alongside
// the loaded modules.
func (s *Server) systemStatus(c *gin.Context) {
	status := gin.H{
		"library_root": s.cfg.Library.RootDir,
	}

	if usage, err := disk.Usage(s.cfg.Library.RootDir); err == nil {
		status["disk"] = gin.H{
			"total_bytes": usage.Total,
			"free_bytes":  usage.Free,
			"used_pct":    usage.UsedPercent,
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory"] = gin.H{
			"total_bytes": vm.Total,
			"used_pct":    vm.UsedPercent,
		}
	}
	if info, err := host.Info(); err == nil {
		status["host"] = gin.H{
			"hostname": info.Hostname,
			"os":       info.OS,
			"platform": info.Platform,
			"uptime_s": info.Uptime,
		}
	}

	modules := make([]gin.H, 0)
	for _, m := range modulemanager.ListModules() {
		modules = append(modules, gin.H{
			"id":   m.ID(),
			"name": m.Name(),
			"core": m.Core(),
		})
	}
	status["modules"] = modules

	c.JSON(http.StatusOK, status)
}

func (s *Server) recentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{
		"events": events.GetGlobalEventBus().Recent(limit),
	})
}

func (s *Server) eventStats(c *gin.Context) {
	c.JSON(http.StatusOK, events.GetGlobalEventBus().Stats())
}
