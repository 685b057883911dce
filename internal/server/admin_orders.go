package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
)

// ListQueue defaults to the orders waiting for staff.
func (s *Server) ListQueue(c *gin.Context) {
	status := orderdomain.StatusReadyForProcessing
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		parsed, ok := orderdomain.ParseStatus(raw)
		if !ok {
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
		status = parsed
	}

	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	size := 0
	if limit != nil {
		size = *limit
	}

	orders, err := s.orderSvc.ListByStatus(c.Request.Context(), status, size)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (s *Server) GetOrderForStaff(c *gin.Context) {
	orderID, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.orderSvc.GetForStaff(c.Request.Context(), staffIDFrom(c), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BeginProcessing(c *gin.Context) {
	orderID, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	resp, err := s.orderSvc.BeginProcessing(c.Request.Context(), staffIDFrom(c), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type uploadArtifactRequest struct {
	ArtifactRef string `json:"artifact_ref"`
}

func (s *Server) UploadArtifact(c *gin.Context) {
	orderID, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req uploadArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.UploadArtifact(c.Request.Context(), staffIDFrom(c), orderID, strings.TrimSpace(req.ArtifactRef))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelOrder(c *gin.Context) {
	orderID, ok := parseSnowflakeID(c.Param("id"))
	if !ok {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	// The body is optional.
	var req cancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.orderSvc.Cancel(c.Request.Context(), staffIDFrom(c), orderID, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
