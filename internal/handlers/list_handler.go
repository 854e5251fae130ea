package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"kanbo/internal/services"
)

// ListHandler 列表、阶段与字段管理处理器
type ListHandler struct {
	lists  *services.ListService
	logger *logrus.Logger
}

// NewListHandler 创建列表处理器
func NewListHandler(lists *services.ListService, logger *logrus.Logger) *ListHandler {
	return &ListHandler{lists: lists, logger: logger}
}

type memberRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

// CreateList 在空间下创建列表
// @Summary 创建列表
// @Tags 列表
// @Accept json
// @Produce json
// @Param id path string true "空间ID"
// @Success 201 {object} models.List
// @Router /api/spaces/{id}/lists [post]
func (h *ListHandler) CreateList(c *gin.Context) {
	spaceID, ok := parseUUIDParam(c, "id", "space")
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

	list, err := h.lists.Create(c.Request.Context(), spaceID, req.Name)
	if err != nil {
		h.logger.Errorf("Failed to create list: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create list",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, list)
}

// ListLists 列出空间下的列表
// @Summary 列出列表
// @Tags 列表
// @Produce json
// @Param id path string true "空间ID"
// @Success 200 {array} models.List
// @Router /api/spaces/{id}/lists [get]
func (h *ListHandler) ListLists(c *gin.Context) {
	spaceID, ok := parseUUIDParam(c, "id", "space")
	if !ok {
		return
	}

	lists, err := h.lists.ListBySpace(c.Request.Context(), spaceID)
	if err != nil {
		h.logger.Errorf("Failed to list lists: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list lists",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, lists)
}

// GetList 获取列表详情（含阶段、字段、成员）
// @Summary 获取列表详情
// @Tags 列表
// @Produce json
// @Param id path string true "列表ID"
// @Success 200 {object} models.List
// @Failure 404 {object} ErrorResponse
// @Router /api/lists/{id} [get]
func (h *ListHandler) GetList(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "list")
	if !ok {
		return
	}

	list, err := h.lists.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrListNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "List not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to get list %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get list",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, list)
}

// UpdateList 更新列表
// @Summary 更新列表
// @Tags 列表
// @Accept json
// @Produce json
// @Param id path string true "列表ID"
// @Success 200 {object} models.List
// @Router /api/lists/{id} [put]
func (h *ListHandler) UpdateList(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "list")
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

	list, err := h.lists.Update(c.Request.Context(), id, req.Name, req.Position)
	if err != nil {
		if errors.Is(err, services.ErrListNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "List not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to update list %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update list",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, list)
}

// DeleteList 删除列表
// @Summary 删除列表
// @Tags 列表
// @Produce json
// @Param id path string true "列表ID"
// @Success 200 {object} SuccessResponse
// @Router /api/lists/{id} [delete]
func (h *ListHandler) DeleteList(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "list")
	if !ok {
		return
	}

	if err := h.lists.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrListNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "List not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to delete list %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete list",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "List deleted"})
}

// AddStage 添加阶段
// @Summary 添加阶段
// @Tags 列表
// @Accept json
// @Produce json
// @Param id path string true "列表ID"
// @Success 201 {object} models.Stage
// @Router /api/lists/{id}/stages [post]
func (h *ListHandler) AddStage(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "list")
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

	stage, err := h.lists.AddStage(c.Request.Context(), id, req.Name)
	if err != nil {
		h.logger.Errorf("Failed to add stage: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to add stage",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, stage)
}

// DeleteStage 删除阶段
// @Summary 删除阶段
// @Tags 列表
// @Produce json
// @Param stage_id path string true "阶段ID"
// @Success 200 {object} SuccessResponse
// @Router /api/lists/stages/{stage_id} [delete]
func (h *ListHandler) DeleteStage(c *gin.Context) {
	stageID, ok := parseUUIDParam(c, "stage_id", "stage")
	if !ok {
		return
	}

	if err := h.lists.DeleteStage(c.Request.Context(), stageID); err != nil {
		h.logger.Errorf("Failed to delete stage %s: %v", stageID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete stage",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Stage deleted"})
}

// AddField 添加自定义字段
// @Summary 添加自定义字段
// @Tags 列表
// @Accept json
// @Produce json
// @Param id path string true "列表ID"
// @Success 201 {object} models.ListField
// @Router /api/lists/{id}/fields [post]
func (h *ListHandler) AddField(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "list")
	if !ok {
		return
	}

	var req services.ListFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	field, err := h.lists.AddField(c.Request.Context(), id, &req)
	if err != nil {
		h.logger.Errorf("Failed to add field: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to add field",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, field)
}

// UpdateField 更新字段定义
// @Summary 更新字段定义
// @Tags 列表
// @Accept json
// @Produce json
// @Param field_id path string true "字段ID"
// @Success 200 {object} models.ListField
// @Router /api/lists/fields/{field_id} [put]
func (h *ListHandler) UpdateField(c *gin.Context) {
	fieldID, ok := parseUUIDParam(c, "field_id", "field")
	if !ok {
		return
	}

	var req services.ListFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	field, err := h.lists.UpdateField(c.Request.Context(), fieldID, &req)
	if err != nil {
		h.logger.Errorf("Failed to update field %s: %v", fieldID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update field",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, field)
}

// DeleteField 删除字段定义
// @Summary 删除字段定义
// @Tags 列表
// @Produce json
// @Param field_id path string true "字段ID"
// @Success 200 {object} SuccessResponse
// @Router /api/lists/fields/{field_id} [delete]
func (h *ListHandler) DeleteField(c *gin.Context) {
	fieldID, ok := parseUUIDParam(c, "field_id", "field")
	if !ok {
		return
	}

	if err := h.lists.DeleteField(c.Request.Context(), fieldID); err != nil {
		h.logger.Errorf("Failed to delete field %s: %v", fieldID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete field",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Field deleted"})
}

// AddMember 添加列表成员
// @Summary 添加列表成员
// @Tags 列表
// @Accept json
// @Produce json
// @Param id path string true "列表ID"
// @Success 201 {object} models.ListMember
// @Router /api/lists/{id}/members [post]
func (h *ListHandler) AddMember(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "list")
	if !ok {
		return
	}

	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	member, err := h.lists.AddMember(c.Request.Context(), id, req.UserID, req.Role)
	if err != nil {
		h.logger.Errorf("Failed to add member: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to add member",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, member)
}

// RemoveMember 移除列表成员
// @Summary 移除列表成员
// @Tags 列表
// @Produce json
// @Param id path string true "列表ID"
// @Param user_id path int true "用户ID"
// @Success 200 {object} SuccessResponse
// @Router /api/lists/{id}/members/{user_id} [delete]
func (h *ListHandler) RemoveMember(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id", "list")
	if !ok {
		return
	}

	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid user ID",
			Message: "ID must be a valid number",
		})
		return
	}

	if err := h.lists.RemoveMember(c.Request.Context(), id, uint(userID)); err != nil {
		h.logger.Errorf("Failed to remove member: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to remove member",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Member removed"})
}

// RegisterListRoutes 注册列表相关路由
func RegisterListRoutes(r *gin.RouterGroup, handler *ListHandler) {
	r.POST("/spaces/:id/lists", handler.CreateList)
	r.GET("/spaces/:id/lists", handler.ListLists)

	lists := r.Group("/lists")
	{
		lists.GET("/:id", handler.GetList)
		lists.PUT("/:id", handler.UpdateList)
		lists.DELETE("/:id", handler.DeleteList)
		lists.POST("/:id/stages", handler.AddStage)
		lists.DELETE("/stages/:stage_id", handler.DeleteStage)
		lists.POST("/:id/fields", handler.AddField)
		lists.PUT("/fields/:field_id", handler.UpdateField)
		lists.DELETE("/fields/:field_id", handler.DeleteField)
		lists.POST("/:id/members", handler.AddMember)
		lists.DELETE("/:id/members/:user_id", handler.RemoveMember)
	}
}
