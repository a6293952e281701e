package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/ragflow/api"
	"github.com/BaSui01/ragflow/rag"
	"go.uber.org/zap"
)

// DocumentIngester 导入目录中的文档
type DocumentIngester interface {
	Ingest(ctx context.Context, dir, project string) (*rag.IngestResult, error)
}

// IngestHandler 文档导入处理器
type IngestHandler struct {
	ingester DocumentIngester
	docsDir  string
	logger   *zap.Logger
}

// NewIngestHandler 创建导入处理器，docsDir 为服务端文档目录
func NewIngestHandler(ingester DocumentIngester, docsDir string, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{
		ingester: ingester,
		docsDir:  docsDir,
		logger:   logger.With(zap.String("component", "ingest_handler")),
	}
}

// HandleIngest 导入配置目录中的文档到项目
// @Summary 文档导入
// @Tags 导入
// @Accept json
// @Produce json
// @Param request body api.IngestRequest false "导入请求"
// @Success 200 {object} api.IngestResponse
// @Security ApiKeyAuth
// @Router /ingest [post]
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}
	if err := api.Validate(req); err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	// ingestion outlives a disconnecting client
	res, err := h.ingester.Ingest(context.WithoutCancel(r.Context()), h.docsDir, req.Project)
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.IngestResponse{
		Status:     "ingested",
		Chunks:     res.Chunks,
		Documents:  res.Documents,
		Project:    res.Project,
		DurationMS: res.Duration.Milliseconds(),
	})
}
