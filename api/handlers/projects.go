package handlers

import (
	"errors"
	"net/http"

	"github.com/BaSui01/ragflow/api"
	"github.com/BaSui01/ragflow/project"
	"github.com/BaSui01/ragflow/types"
	"go.uber.org/zap"
)

// ProjectHandler 项目注册表处理器
type ProjectHandler struct {
	registry project.Registry
	logger   *zap.Logger
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(registry project.Registry, logger *zap.Logger) *ProjectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectHandler{registry: registry, logger: logger.With(zap.String("component", "project_handler"))}
}

// HandleList 列出全部项目
// @Summary 项目列表
// @Tags 项目
// @Produce json
// @Success 200 {object} api.ProjectList
// @Security ApiKeyAuth
// @Router /projects [get]
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.registry.List(r.Context())
	if err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, api.ProjectList{Projects: projects})
}

// HandleCreate 创建项目，名称大小写不敏感地唯一
// @Summary 创建项目
// @Tags 项目
// @Accept json
// @Produce json
// @Param request body api.ProjectRequest true "项目"
// @Success 200 {object} api.OKResponse
// @Failure 400 {object} ErrorResponse
// @Security ApiKeyAuth
// @Router /projects [post]
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.ProjectRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := api.Validate(req); err != nil {
		WriteErrorFrom(w, r, err, h.logger)
		return
	}

	err := h.registry.Create(r.Context(), project.Project{Name: req.Name, Color: req.Color})
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, api.OKResponse{OK: true})
	case errors.Is(err, project.ErrDuplicateProject):
		WriteError(w, r, types.NewError(types.ErrConflict, "Project already exists").WithCause(err), h.logger)
	case errors.Is(err, project.ErrInvalidProject):
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
	default:
		WriteError(w, r, types.NewError(types.ErrInternalError, "save project").WithCause(err), h.logger)
	}
}
