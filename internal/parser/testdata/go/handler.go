package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/example/svc/internal/store"
)

type OrderHandler struct {
	repo *store.OrderRepo
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id := c.Param("id")
	h.repo.FindByID(id)
}

func RegisterRoutes(r *gin.Engine, h *OrderHandler) {
	r.GET("/orders/:id", h.GetOrder)
}
