package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	synthide "github.com/gsarma/synthide/sdk"
)

// ExplainCode returns {"explanation": "..."}. Assistant failures are returned
// as 200 with an "Error: ..." text in place of the result so the editor can
// show them inline. GenerateCode does the same.
func (h *Handler) ExplainCode(c *gin.Context) {
	var body synthide.ExplainRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	text, err := h.assist.Explain(c.Request.Context(), body.Code, string(body.Language))
	if err != nil {
		h.log.Warn("explain failed", zap.Error(err))
		text = "Error: " + err.Error()
	}
	c.JSON(http.StatusOK, synthide.ExplainResponse{Explanation: &text})
}

func (h *Handler) GenerateCode(c *gin.Context) {
	var body synthide.GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	code, err := h.assist.Generate(c.Request.Context(), body.Prompt, string(body.Language))
	if err != nil {
		h.log.Warn("generate failed", zap.Error(err))
		code = "Error: " + err.Error()
	}
	c.JSON(http.StatusOK, synthide.GenerateResponse{Code: &code})
}
