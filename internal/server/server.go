package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wx-shi/chainsim/internal/config"
	"github.com/wx-shi/chainsim/internal/db"
	"github.com/wx-shi/chainsim/internal/runner"
	"github.com/wx-shi/chainsim/pkg"
	"go.uber.org/zap"
)

const (
	// readTimeout is the maximum duration for reading the entire
	// request, including the body.
	readTimeout = time.Minute

	// writeTimeout is the maximum duration before timing out
	// writes of the response.
	writeTimeout = time.Minute

	// idleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled.
	idleTimeout = 5 * time.Minute

	defaultPageSize = 100
)

type Server struct {
	conf   *config.ServerConfig
	logger *zap.Logger
	db     *db.DB
	runner *runner.Runner
	engine *gin.Engine
	hs     *http.Server
}

func NewServer(conf *config.ServerConfig, logger *zap.Logger, db *db.DB, runner *runner.Runner) *Server {
	s := &Server{
		conf:   conf,
		logger: logger,
		db:     db,
		runner: runner,
	}

	s.initGin()
	return s
}

func (s *Server) initGin() {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(pkg.LogMiddleware(s.logger), pkg.CORSMiddleware(), gin.Recovery())

	engine.POST("ledger", s.ledgerHandle())
	engine.POST("utxo", s.utxoHandle())
	engine.POST("note", s.noteHandle())
	engine.POST("nodes", s.nodesHandle())
	engine.POST("events", s.eventsHandle())
	engine.POST("finals", s.finalsHandle())
	engine.POST("round", s.roundHandle())
	s.engine = engine
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run() {
	addr := fmt.Sprintf("%s:%d", s.conf.Host, s.conf.Port)
	hs := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	s.hs = hs

	go func() {
		if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("listen", zap.Error(err))
		}
	}()
	s.logger.Info("listen", zap.String("addr", addr))
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.hs == nil {
		return nil
	}
	return s.hs.Shutdown(ctx)
}

func ok(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": data,
	})
}

func fail(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"code": http.StatusInternalServerError,
		"msg":  err.Error(),
	})
}
