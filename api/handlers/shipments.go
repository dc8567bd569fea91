package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/tracing"
)

// ListShipments returns every shipment record, newest message first.
func ListShipments(repo interfaces.ShipmentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "handlers.ListShipments")
		defer span.Finish()
		tracing.TagComponentRest(span)

		shipments, err := repo.List(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list shipments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"shipments": shipments})
	}
}

// GetShipment returns one shipment by its delivery identifier.
func GetShipment(repo interfaces.ShipmentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "handlers.GetShipment")
		defer span.Finish()
		tracing.TagComponentRest(span)

		delivery := c.Param("delivery")
		tracing.TagEntity(span, delivery)

		shipment, err := repo.GetByDelivery(ctx, delivery)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get shipment"})
			return
		}
		if shipment == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "shipment not found"})
			return
		}
		c.JSON(http.StatusOK, shipment)
	}
}
