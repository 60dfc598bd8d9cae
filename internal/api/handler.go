package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gsarma/synthide/internal/store"
	synthide "github.com/gsarma/synthide/sdk"
)

// Assistant explains and generates code. *assist.Client implements it.
type Assistant interface {
	Explain(ctx context.Context, code, language string) (string, error)
	Generate(ctx context.Context, task, language string) (string, error)
}

type Handler struct {
	runs   store.RunStore
	assist Assistant
	log    *zap.Logger
}

func NewHandler(runs store.RunStore, assistant Assistant, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{runs: runs, assist: assistant, log: log}
}

// Health reports that the process is serving requests.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, synthide.HealthResponse{Status: "ok"})
}
