package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	entitlementdomain "github.com/smallbiznis/orderdesk/internal/entitlement/domain"
	orderdomain "github.com/smallbiznis/orderdesk/internal/order/domain"
)

func (s *Server) GetEntitlements(c *gin.Context) {
	resp, err := s.entitlementSvc.Balance(c.Request.Context(), accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type createRequestRequest struct {
	Kind     string               `json:"kind"`
	FormData orderdomain.FormData `json:"form_data"`
}

// CreateRequest spends one credit of the requested kind.
func (s *Server) CreateRequest(c *gin.Context) {
	var req createRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	kind, ok := entitlementdomain.ParseKind(req.Kind)
	if !ok {
		AbortWithError(c, entitlementdomain.ErrInvalidKind)
		return
	}

	resp, err := s.submissionSvc.Create(c.Request.Context(), accountIDFrom(c), kind, req.FormData)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListRequests(c *gin.Context) {
	resp, err := s.submissionSvc.List(c.Request.Context(), accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
