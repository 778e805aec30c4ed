package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/service"
)

// DeckHandler 卡组与卡牌目录
type DeckHandler struct {
	decks   service.DeckService
	catalog *card.Catalog
}

// NewDeckHandler 创建卡组处理器
func NewDeckHandler(decks service.DeckService, catalog *card.Catalog) *DeckHandler {
	return &DeckHandler{decks: decks, catalog: catalog}
}

// ListCards 卡牌目录
// @Summary 卡牌目录
// @Tags Cards
// @Produce json
// @Router /api/v1/cards [get]
func (h *DeckHandler) ListCards(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"cards": h.catalog.All()})
}

// CreateDeck 创建卡组
// @Summary 创建卡组
// @Tags Decks
// @Security BearerAuth
// @Accept json
// @Param request body service.DeckRequest true "卡组"
// @Router /api/v1/decks [post]
func (h *DeckHandler) CreateDeck(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.DeckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	deck, err := h.decks.CreateDeck(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"deck": deck})
}

// ListDecks 当前用户的卡组
// @Summary 卡组列表
// @Tags Decks
// @Security BearerAuth
// @Router /api/v1/decks [get]
func (h *DeckHandler) ListDecks(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	decks, err := h.decks.ListDecks(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"decks": decks})
}

// GetDeck 卡组详情
// @Summary 卡组详情
// @Tags Decks
// @Security BearerAuth
// @Param id path string true "卡组ID"
// @Router /api/v1/decks/{id} [get]
func (h *DeckHandler) GetDeck(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	deck, err := h.decks.GetDeck(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deck": deck})
}

// UpdateDeck 更新卡组
// @Summary 更新卡组
// @Tags Decks
// @Security BearerAuth
// @Param id path string true "卡组ID"
// @Param request body service.DeckRequest true "卡组"
// @Router /api/v1/decks/{id} [put]
func (h *DeckHandler) UpdateDeck(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.DeckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	deck, err := h.decks.UpdateDeck(c.Request.Context(), userID, c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deck": deck})
}

// DeleteDeck 删除卡组
// @Summary 删除卡组
// @Tags Decks
// @Security BearerAuth
// @Param id path string true "卡组ID"
// @Router /api/v1/decks/{id} [delete]
func (h *DeckHandler) DeleteDeck(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.decks.DeleteDeck(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}

// ActivateDeck 设为默认卡组
// @Summary 设为默认卡组
// @Tags Decks
// @Security BearerAuth
// @Param id path string true "卡组ID"
// @Router /api/v1/decks/{id}/activate [post]
func (h *DeckHandler) ActivateDeck(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.decks.ActivateDeck(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil)
}
