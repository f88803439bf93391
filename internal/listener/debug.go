package listener

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/logger"
)

// debugServer is the loopback-only inspection HTTP surface (SPEC_FULL.md
// §4.1/§6.11): read-only snapshots of folded state for operators and
// tests, mirroring the teacher's gin-based HTTP layer style without
// carrying over any of its board/task routes.
type debugServer struct {
	srv *http.Server
	nl  net.Listener
	log *logger.Logger
}

func newDebugServer(addr string, ex *effects.Executor, log *logger.Logger) (*debugServer, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/debug/jobs", func(c *gin.Context) { c.JSON(http.StatusOK, ex.State().Jobs) })
	r.GET("/debug/crews", func(c *gin.Context) { c.JSON(http.StatusOK, ex.State().Crews) })
	r.GET("/debug/agents", func(c *gin.Context) { c.JSON(http.StatusOK, ex.State().Agents) })
	r.GET("/debug/queues", func(c *gin.Context) { c.JSON(http.StatusOK, ex.State().QueueItems) })
	r.GET("/debug/workers", func(c *gin.Context) { c.JSON(http.StatusOK, ex.State().Workers) })
	r.GET("/debug/crons", func(c *gin.Context) { c.JSON(http.StatusOK, ex.State().Crons) })
	r.GET("/debug/decisions", func(c *gin.Context) { c.JSON(http.StatusOK, ex.State().Decisions) })
	r.GET("/debug/seq", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"last_applied_seq": ex.State().LastAppliedSeq})
	})

	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &debugServer{
		srv: &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second},
		nl:  nl,
		log: log.WithFields(zap.String("component", "debug_http")),
	}, nil
}

func (d *debugServer) serve() {
	if err := d.srv.Serve(d.nl); err != nil && err != http.ErrServerClosed {
		d.log.Error("debug http server stopped unexpectedly", zap.Error(err))
	}
}

func (d *debugServer) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.srv.Shutdown(ctx)
}
