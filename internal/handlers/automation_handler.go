package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kanbo/internal/automation"
	"kanbo/internal/services"
)

// AutomationHandler 自动化规则管理处理器
type AutomationHandler struct {
	automations *services.AutomationService
	validation  *services.ValidationService
	registry    *automation.Registry
	logger      *logrus.Logger
}

// NewAutomationHandler 创建自动化处理器
func NewAutomationHandler(automations *services.AutomationService, validation *services.ValidationService, registry *automation.Registry, logger *logrus.Logger) *AutomationHandler {
	return &AutomationHandler{
		automations: automations,
		validation:  validation,
		registry:    registry,
		logger:      logger,
	}
}

// CreateAutomation 创建自动化
// @Summary 创建自动化
// @Description 创建触发器加动作链的自动化规则
// @Tags 自动化
// @Accept json
// @Produce json
// @Param automation body services.AutomationRequest true "自动化定义"
// @Success 201 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/automations [post]
func (h *AutomationHandler) CreateAutomation(c *gin.Context) {
	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	am, err := h.automations.Create(c.Request.Context(), &req)
	if err != nil {
		h.logger.Errorf("Failed to create automation: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, am)
}

// GetAutomation 获取自动化详情
// @Summary 获取自动化详情
// @Description 返回自动化及其完整步骤链
// @Tags 自动化
// @Produce json
// @Param id path string true "自动化ID"
// @Success 200 {object} models.Automation
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id} [get]
func (h *AutomationHandler) GetAutomation(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	am, err := h.automations.FindOne(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrAutomationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to get automation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, am)
}

// ListAutomations 列出自动化
// @Summary 列出自动化
// @Tags 自动化
// @Produce json
// @Success 200 {array} models.Automation
// @Router /api/automations [get]
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	list, err := h.automations.List(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Failed to list automations: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list automations",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, list)
}

// UpdateAutomation 更新自动化
// @Summary 更新自动化
// @Description 整体替换触发器、动作链和位置绑定
// @Tags 自动化
// @Accept json
// @Produce json
// @Param id path string true "自动化ID"
// @Param automation body services.AutomationRequest true "自动化定义"
// @Success 200 {object} models.Automation
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id} [put]
func (h *AutomationHandler) UpdateAutomation(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	am, err := h.automations.Update(c.Request.Context(), id, &req)
	if err != nil {
		if errors.Is(err, services.ErrAutomationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to update automation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to update automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, am)
}

// DeleteAutomation 删除自动化
// @Summary 删除自动化
// @Tags 自动化
// @Produce json
// @Param id path string true "自动化ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id} [delete]
func (h *AutomationHandler) DeleteAutomation(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.automations.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrAutomationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to delete automation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Automation deleted"})
}

// DuplicateAutomation 复制自动化
// @Summary 复制自动化
// @Description 深拷贝自动化及其步骤链，副本与原件完全独立
// @Tags 自动化
// @Produce json
// @Param id path string true "自动化ID"
// @Success 201 {object} models.Automation
// @Failure 404 {object} ErrorResponse
// @Router /api/automations/{id}/duplicate [post]
func (h *AutomationHandler) DuplicateAutomation(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	copy, err := h.automations.Duplicate(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrAutomationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Automation not found",
				Message: err.Error(),
			})
			return
		}
		h.logger.Errorf("Failed to duplicate automation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to duplicate automation",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, copy)
}

// GetAutomationRuns 查询运行记录
// @Summary 查询运行记录
// @Description 按时间倒序返回执行审计账本
// @Tags 自动化
// @Produce json
// @Param id path string true "自动化ID"
// @Param limit query int false "条数上限"
// @Success 200 {array} models.AutomationRun
// @Router /api/automations/{id}/runs [get]
func (h *AutomationHandler) GetAutomationRuns(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	runs, err := h.automations.Runs(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Errorf("Failed to get runs for automation %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get automation runs",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// ValidateAutomation 运行前校验
// @Summary 运行前校验
// @Description 对照当前 schema 校验整条自动化
// @Tags 自动化
// @Produce json
// @Param id path string true "自动化ID"
// @Success 200 {object} services.ValidationResult
// @Router /api/automations/{id}/validate [get]
func (h *AutomationHandler) ValidateAutomation(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	result := h.validation.ValidateAutomationBeforeRun(c.Request.Context(), id)
	c.JSON(http.StatusOK, result)
}

// ValidateStep 单步草稿校验
// @Summary 单步草稿校验
// @Description 构建器编辑中的即时校验
// @Tags 自动化
// @Accept json
// @Produce json
// @Param step body services.StepValidationRequest true "步骤草稿"
// @Success 200 {object} services.ValidationResult
// @Failure 400 {object} ErrorResponse
// @Router /api/automations/validate-step [post]
func (h *AutomationHandler) ValidateStep(c *gin.Context) {
	var req services.StepValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	result := h.validation.ValidateStep(c.Request.Context(), req)
	c.JSON(http.StatusOK, result)
}

// ListTriggerHandlers 列出可用触发器
// @Summary 列出可用触发器
// @Tags 自动化处理器
// @Produce json
// @Success 200 {array} automation.HandlerMeta
// @Router /api/automation-handlers/triggers [get]
func (h *AutomationHandler) ListTriggerHandlers(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Triggers())
}

// ListActionHandlers 列出可用动作
// @Summary 列出可用动作
// @Tags 自动化处理器
// @Produce json
// @Success 200 {array} automation.HandlerMeta
// @Router /api/automation-handlers/actions [get]
func (h *AutomationHandler) ListActionHandlers(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Actions())
}

// HandlerFields 处理器动态字段 schema
// @Summary 处理器动态字段 schema
// @Description 按自动化实例上下文计算处理器的可配置字段
// @Tags 自动化处理器
// @Accept json
// @Produce json
// @Param kind path string true "处理器类型"
// @Param request body automation.FieldsRequest true "实例上下文"
// @Success 200 {array} automation.Field
// @Failure 404 {object} ErrorResponse
// @Router /api/automation-handlers/{kind}/fields [post]
func (h *AutomationHandler) HandlerFields(c *gin.Context) {
	handler, ok := h.lookupHandler(c)
	if !ok {
		return
	}

	var req automation.FieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	fields, err := handler.Fields(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorf("Failed to compute fields for handler %s: %v", c.Param("kind"), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to compute handler fields",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, fields)
}

// HandlerSampleData 处理器示例数据
// @Summary 处理器示例数据
// @Description 返回处理器输出的占位符示例，供构建器预览
// @Tags 自动化处理器
// @Accept json
// @Produce json
// @Param kind path string true "处理器类型"
// @Param request body automation.FieldsRequest true "实例上下文"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /api/automation-handlers/{kind}/sample-data [post]
func (h *AutomationHandler) HandlerSampleData(c *gin.Context) {
	handler, ok := h.lookupHandler(c)
	if !ok {
		return
	}

	var req automation.FieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	sample, err := handler.SampleData(c.Request.Context(), req)
	if err != nil {
		h.logger.Errorf("Failed to compute sample data for handler %s: %v", c.Param("kind"), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to compute sample data",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, sample)
}

func (h *AutomationHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid automation ID",
			Message: "ID must be a valid UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// lookupHandler 先查触发器再查动作，同一 kind 空间
func (h *AutomationHandler) lookupHandler(c *gin.Context) (automation.Handler, bool) {
	kind := c.Param("kind")
	if t, ok := h.registry.Trigger(kind); ok {
		return t, true
	}
	if a, ok := h.registry.Action(kind); ok {
		return a, true
	}
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "Handler not found",
		Message: "No handler registered for kind " + kind,
	})
	return nil, false
}

// RegisterAutomationRoutes 注册自动化相关路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	automations := r.Group("/automations")
	{
		automations.POST("", handler.CreateAutomation)
		automations.GET("", handler.ListAutomations)
		automations.POST("/validate-step", handler.ValidateStep)
		automations.GET("/:id", handler.GetAutomation)
		automations.PUT("/:id", handler.UpdateAutomation)
		automations.DELETE("/:id", handler.DeleteAutomation)
		automations.POST("/:id/duplicate", handler.DuplicateAutomation)
		automations.GET("/:id/runs", handler.GetAutomationRuns)
		automations.GET("/:id/validate", handler.ValidateAutomation)
	}

	catalog := r.Group("/automation-handlers")
	{
		catalog.GET("/triggers", handler.ListTriggerHandlers)
		catalog.GET("/actions", handler.ListActionHandlers)
		catalog.POST("/:kind/fields", handler.HandlerFields)
		catalog.POST("/:kind/sample-data", handler.HandlerSampleData)
	}
}
