package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kanbo/internal/auth"
	"kanbo/internal/services"
)

// WorkspaceHandler 工作区与空间管理处理器
type WorkspaceHandler struct {
	workspaces *services.WorkspaceService
	logger     *logrus.Logger
}

// NewWorkspaceHandler 创建工作区处理器
func NewWorkspaceHandler(workspaces *services.WorkspaceService, logger *logrus.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, logger: logger}
}

type nameRequest struct {
	Name     string `json:"name" binding:"required"`
	Position *int   `json:"position"`
}

// CreateWorkspace 创建工作区
// @Summary 创建工作区
// @Tags 工作区
// @Accept json
// @Produce json
// @Success 201 {object} models.Workspace
// @Router /api/workspaces [post]
func (h *WorkspaceHandler) CreateWorkspace(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	ownerID := auth.UserID(c.Request.Context())
	ws, err := h.workspaces.CreateWorkspace(c.Request.Context(), req.Name, ownerID)
	if err != nil {
		h.logger.Errorf("Failed to create workspace: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create workspace",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, ws)
}

// ListWorkspaces 列出当前用户的工作区
// @Summary 列出工作区
// @Tags 工作区
// @Produce json
// @Success 200 {array} models.Workspace
// @Router /api/workspaces [get]
func (h *WorkspaceHandler) ListWorkspaces(c *gin.Context) {
	ownerID := auth.UserID(c.Request.Context())
	list, err := h.workspaces.ListWorkspaces(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Errorf("Failed to list workspaces: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list workspaces",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetWorkspace 获取工作区详情
// @Summary 获取工作区详情
// @Tags 工作区
// @Produce json
// @Param id path string true "工作区ID"
// @Success 200 {object} models.Workspace
// @Failure 404 {object} ErrorResponse
// @Router /api/workspaces/{id} [get]
func (h *WorkspaceHandler) GetWorkspace(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "workspace")
	if !ok {
		return
	}

	ws, err := h.workspaces.GetWorkspace(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrWorkspaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Workspace not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to get workspace %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get workspace",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ws)
}

// UpdateWorkspace 更新工作区
// @Summary 更新工作区
// @Tags 工作区
// @Accept json
// @Produce json
// @Param id path string true "工作区ID"
// @Success 200 {object} models.Workspace
// @Router /api/workspaces/{id} [put]
func (h *WorkspaceHandler) UpdateWorkspace(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "workspace")
	if !ok {
		return
	}

	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	ws, err := h.workspaces.UpdateWorkspace(c.Request.Context(), id, req.Name)
	if err != nil {
		if errors.Is(err, services.ErrWorkspaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Workspace not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to update workspace %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update workspace",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ws)
}

// DeleteWorkspace 删除工作区
// @Summary 删除工作区
// @Tags 工作区
// @Produce json
// @Param id path string true "工作区ID"
// @Success 200 {object} SuccessResponse
// @Router /api/workspaces/{id} [delete]
func (h *WorkspaceHandler) DeleteWorkspace(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "workspace")
	if !ok {
		return
	}

	if err := h.workspaces.DeleteWorkspace(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrWorkspaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Workspace not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to delete workspace %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete workspace",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Workspace deleted"})
}

// CreateSpace 在工作区下创建空间
// @Summary 创建空间
// @Tags 工作区
// @Accept json
// @Produce json
// @Param id path string true "工作区ID"
// @Success 201 {object} models.Space
// @Router /api/workspaces/{id}/spaces [post]
func (h *WorkspaceHandler) CreateSpace(c *gin.Context) {
	workspaceID, ok := parseUUIDParam(c, "id", "workspace")
	if !ok {
		return
	}

	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	sp, err := h.workspaces.CreateSpace(c.Request.Context(), workspaceID, req.Name)
	if err != nil {
		if errors.Is(err, services.ErrWorkspaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Workspace not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to create space: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create space",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, sp)
}

// ListSpaces 列出工作区下的空间
// @Summary 列出空间
// @Tags 工作区
// @Produce json
// @Param id path string true "工作区ID"
// @Success 200 {array} models.Space
// @Router /api/workspaces/{id}/spaces [get]
func (h *WorkspaceHandler) ListSpaces(c *gin.Context) {
	workspaceID, ok := parseUUIDParam(c, "id", "workspace")
	if !ok {
		return
	}

	list, err := h.workspaces.ListSpaces(c.Request.Context(), workspaceID)
	if err != nil {
		h.logger.Errorf("Failed to list spaces: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list spaces",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, list)
}

// GetSpace 获取空间详情
// @Summary 获取空间详情
// @Tags 空间
// @Produce json
// @Param id path string true "空间ID"
// @Success 200 {object} models.Space
// @Failure 404 {object} ErrorResponse
// @Router /api/spaces/{id} [get]
func (h *WorkspaceHandler) GetSpace(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "space")
	if !ok {
		return
	}

	sp, err := h.workspaces.GetSpace(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrSpaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Space not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to get space %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get space",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, sp)
}

// UpdateSpace 更新空间
// @Summary 更新空间
// @Tags 空间
// @Accept json
// @Produce json
// @Param id path string true "空间ID"
// @Success 200 {object} models.Space
// @Router /api/spaces/{id} [put]
func (h *WorkspaceHandler) UpdateSpace(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "space")
	if !ok {
		return
	}

	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	sp, err := h.workspaces.UpdateSpace(c.Request.Context(), id, req.Name, req.Position)
	if err != nil {
		if errors.Is(err, services.ErrSpaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Space not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to update space %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update space",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, sp)
}

// DeleteSpace 删除空间
// @Summary 删除空间
// @Tags 空间
// @Produce json
// @Param id path string true "空间ID"
// @Success 200 {object} SuccessResponse
// @Router /api/spaces/{id} [delete]
func (h *WorkspaceHandler) DeleteSpace(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "space")
	if !ok {
		return
	}

	if err := h.workspaces.DeleteSpace(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrSpaceNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Space not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to delete space %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete space",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Space deleted"})
}

func parseUUIDParam(c *gin.Context, param, kind string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid " + kind + " ID",
			Message: "ID must be a valid UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// RegisterWorkspaceRoutes 注册工作区与空间相关路由
func RegisterWorkspaceRoutes(r *gin.RouterGroup, handler *WorkspaceHandler) {
	workspaces := r.Group("/workspaces")
	{
		workspaces.POST("", handler.CreateWorkspace)
		workspaces.GET("", handler.ListWorkspaces)
		workspaces.GET("/:id", handler.GetWorkspace)
		workspaces.PUT("/:id", handler.UpdateWorkspace)
		workspaces.DELETE("/:id", handler.DeleteWorkspace)
		workspaces.POST("/:id/spaces", handler.CreateSpace)
		workspaces.GET("/:id/spaces", handler.ListSpaces)
	}

	spaces := r.Group("/spaces")
	{
		spaces.GET("/:id", handler.GetSpace)
		spaces.PUT("/:id", handler.UpdateSpace)
		spaces.DELETE("/:id", handler.DeleteSpace)
	}
}
