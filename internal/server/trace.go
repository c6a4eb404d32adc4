package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wx-shi/chainsim/internal/model"
)

func bindPage(ctx *gin.Context) (model.PageRequest, bool) {
	var req model.PageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	return req, true
}

func (s *Server) eventsHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		req, valid := bindPage(ctx)
		if !valid {
			return
		}
		reply, err := s.db.GetEvents(req.Page, req.PageSize)
		if err != nil {
			fail(ctx, err)
			return
		}
		ok(ctx, reply)
	}
}

func (s *Server) finalsHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		req, valid := bindPage(ctx)
		if !valid {
			return
		}
		reply, err := s.db.GetFinals(req.Page, req.PageSize)
		if err != nil {
			fail(ctx, err)
			return
		}
		ok(ctx, reply)
	}
}

func (s *Server) roundHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		sround, err := s.db.GetStoreRound()
		if err != nil {
			fail(ctx, err)
			return
		}
		sheight, err := s.db.GetStoreHeight()
		if err != nil {
			fail(ctx, err)
			return
		}
		ok(ctx, model.RoundReply{
			StoreRound:  sround,
			SimRound:    s.runner.Rounds(),
			StoreHeight: sheight,
			Height:      s.runner.Height(),
		})
	}
}
