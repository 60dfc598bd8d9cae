package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gsarma/synthide/internal/store"
	synthide "github.com/gsarma/synthide/sdk"
)

const (
	maxSourceBytes = 64 << 10
	maxStdinBytes  = 64 << 10
)

// RunCode stores a run for the worker and returns its id immediately.
//
// Request body:
//
//	{"code": "print(input())", "language": "python", "input": "optional stdin"}
//
// Returns 200 {"run_id": "..."}. Poll GET /get-output/:run_id for the result.
func (h *Handler) RunCode(c *gin.Context) {
	var body synthide.RunCodeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if body.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if len(body.Code) > maxSourceBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("code exceeds %d byte limit", maxSourceBytes)})
		return
	}
	if len(body.Input) > maxStdinBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("input exceeds %d byte limit", maxStdinBytes)})
		return
	}
	lang, err := synthide.ParseLanguage(body.Language)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported language: %s", body.Language)})
		return
	}

	run, err := h.runs.CreateRun(c.Request.Context(), store.CreateRunParams{
		Language:   string(lang),
		SourceCode: body.Code,
		Stdin:      body.Input,
	})
	if err != nil {
		h.log.Error("create run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue run"})
		return
	}

	h.log.Info("run queued", zap.String("run_id", run.ID.String()), zap.String("language", run.Language))
	c.JSON(http.StatusOK, synthide.RunCodeResponse{RunID: run.ID.String()})
}

// GetOutput returns {"output": "..."} once the run has finished and {} while
// it is pending or running.
func (h *Handler) GetOutput(c *gin.Context) {
	id, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such run id"})
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such run id"})
		return
	}
	if err != nil {
		h.log.Error("get run failed", zap.String("run_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}

	var resp synthide.OutputResponse
	if run.Finished() {
		resp.Output = run.Output
	}
	c.JSON(http.StatusOK, resp)
}
