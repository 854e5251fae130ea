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

// CardHandler 卡片管理处理器
type CardHandler struct {
	cards  *services.CardService
	logger *logrus.Logger
}

// NewCardHandler 创建卡片处理器
func NewCardHandler(cards *services.CardService, logger *logrus.Logger) *CardHandler {
	return &CardHandler{cards: cards, logger: logger}
}

type moveCardRequest struct {
	StageID uuid.UUID `json:"stage_id" binding:"required"`
}

type assignCardRequest struct {
	AssigneeID uint `json:"assignee_id" binding:"required"`
}

type commentRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateCard 创建卡片
// @Summary 创建卡片
// @Tags 卡片
// @Accept json
// @Produce json
// @Param id path string true "列表ID"
// @Param card body services.CardRequest true "卡片信息"
// @Success 201 {object} models.Card
// @Failure 400 {object} ErrorResponse
// @Router /api/lists/{id}/cards [post]
func (h *CardHandler) CreateCard(c *gin.Context) {
	listID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid list ID",
			Message: "ID must be a valid UUID",
		})
		return
	}

	var req services.CardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	creatorID := auth.UserID(c.Request.Context())
	card, err := h.cards.Create(c.Request.Context(), listID, creatorID, &req)
	if err != nil {
		h.logger.Errorf("Failed to create card: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create card",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, card)
}

// ListCards 列出列表内的卡片
// @Summary 列出卡片
// @Tags 卡片
// @Produce json
// @Param id path string true "列表ID"
// @Success 200 {array} models.Card
// @Router /api/lists/{id}/cards [get]
func (h *CardHandler) ListCards(c *gin.Context) {
	listID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid list ID",
			Message: "ID must be a valid UUID",
		})
		return
	}

	cards, err := h.cards.ListByList(c.Request.Context(), listID)
	if err != nil {
		h.logger.Errorf("Failed to list cards: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list cards",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, cards)
}

// GetCard 获取卡片详情
// @Summary 获取卡片详情
// @Tags 卡片
// @Produce json
// @Param id path string true "卡片ID"
// @Success 200 {object} models.Card
// @Failure 404 {object} ErrorResponse
// @Router /api/cards/{id} [get]
func (h *CardHandler) GetCard(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	card, err := h.cards.Get(c.Request.Context(), id)
	if err != nil {
		h.respondCardError(c, id, err, "Failed to get card")
		return
	}

	c.JSON(http.StatusOK, card)
}

// UpdateCard 更新卡片
// @Summary 更新卡片
// @Description 更新标题、描述与自定义字段；字段变更会触发自动化
// @Tags 卡片
// @Accept json
// @Produce json
// @Param id path string true "卡片ID"
// @Param card body services.CardRequest true "更新信息"
// @Success 200 {object} models.Card
// @Failure 404 {object} ErrorResponse
// @Router /api/cards/{id} [put]
func (h *CardHandler) UpdateCard(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req services.CardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	card, err := h.cards.Update(c.Request.Context(), id, &req)
	if err != nil {
		h.respondCardError(c, id, err, "Failed to update card")
		return
	}

	c.JSON(http.StatusOK, card)
}

// MoveCard 移动卡片到另一阶段
// @Summary 移动卡片
// @Tags 卡片
// @Accept json
// @Produce json
// @Param id path string true "卡片ID"
// @Success 200 {object} models.Card
// @Failure 404 {object} ErrorResponse
// @Router /api/cards/{id}/move [post]
func (h *CardHandler) MoveCard(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req moveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	card, err := h.cards.Move(c.Request.Context(), id, req.StageID)
	if err != nil {
		h.respondCardError(c, id, err, "Failed to move card")
		return
	}

	c.JSON(http.StatusOK, card)
}

// AssignCard 指派负责人
// @Summary 指派负责人
// @Tags 卡片
// @Accept json
// @Produce json
// @Param id path string true "卡片ID"
// @Success 200 {object} models.Card
// @Failure 404 {object} ErrorResponse
// @Router /api/cards/{id}/assign [post]
func (h *CardHandler) AssignCard(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req assignCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	card, err := h.cards.Assign(c.Request.Context(), id, req.AssigneeID)
	if err != nil {
		h.respondCardError(c, id, err, "Failed to assign card")
		return
	}

	c.JSON(http.StatusOK, card)
}

// DeleteCard 删除卡片
// @Summary 删除卡片
// @Tags 卡片
// @Produce json
// @Param id path string true "卡片ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/cards/{id} [delete]
func (h *CardHandler) DeleteCard(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.cards.Delete(c.Request.Context(), id); err != nil {
		h.respondCardError(c, id, err, "Failed to delete card")
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Card deleted"})
}

// AddComment 添加评论
// @Summary 添加评论
// @Tags 卡片
// @Accept json
// @Produce json
// @Param id path string true "卡片ID"
// @Success 201 {object} models.CardComment
// @Router /api/cards/{id}/comments [post]
func (h *CardHandler) AddComment(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	userID := auth.UserID(c.Request.Context())
	comment, err := h.cards.AddComment(c.Request.Context(), id, userID, req.Content)
	if err != nil {
		h.logger.Errorf("Failed to add comment to card %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to add comment",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, comment)
}

func (h *CardHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid card ID",
			Message: "ID must be a valid UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *CardHandler) respondCardError(c *gin.Context, id uuid.UUID, err error, fallback string) {
	if errors.Is(err, services.ErrCardNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Card not found",
			Message: err.Error(),
		})
		return
	}
	h.logger.Errorf("%s %s: %v", fallback, id, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   fallback,
		Message: err.Error(),
	})
}

// RegisterCardRoutes 注册卡片相关路由
func RegisterCardRoutes(r *gin.RouterGroup, handler *CardHandler) {
	r.POST("/lists/:id/cards", handler.CreateCard)
	r.GET("/lists/:id/cards", handler.ListCards)

	cards := r.Group("/cards")
	{
		cards.GET("/:id", handler.GetCard)
		cards.PUT("/:id", handler.UpdateCard)
		cards.DELETE("/:id", handler.DeleteCard)
		cards.POST("/:id/move", handler.MoveCard)
		cards.POST("/:id/assign", handler.AssignCard)
		cards.POST("/:id/comments", handler.AddComment)
	}
}
