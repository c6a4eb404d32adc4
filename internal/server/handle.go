package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wx-shi/chainsim/internal/model"
)

type ledgerRequest struct {
	WithUTXOs bool `json:"with_utxos"`
}

func (s *Server) ledgerHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		var req ledgerRequest
		// empty body means defaults
		if ctx.Request.ContentLength > 0 {
			if err := ctx.ShouldBindJSON(&req); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		ok(ctx, s.runner.Ledger(req.WithUTXOs))
	}
}

func (s *Server) utxoHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		var req model.UTXORequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ok(ctx, s.runner.UTXOs(req.Keys))
	}
}

func (s *Server) noteHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		var req model.NoteRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ok(ctx, s.runner.Note(req.Value))
	}
}

func (s *Server) nodesHandle() func(ctx *gin.Context) {
	return func(ctx *gin.Context) {
		ok(ctx, s.runner.Nodes())
	}
}
