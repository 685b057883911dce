package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/orderdesk/internal/observability/context"
)

// Identity headers are stamped by the authenticating proxy in front of this
// service. Clients never reach it directly.
const (
	HeaderAccountID = "X-Account-ID"
	HeaderStaffID   = "X-Staff-ID"

	contextAccountIDKey = "account_id"
	contextStaffIDKey   = "staff_id"
)

func AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, err := snowflake.ParseString(strings.TrimSpace(c.GetHeader(HeaderAccountID)))
		if err != nil || accountID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextAccountIDKey, accountID)
		ctx := obscontext.WithActor(c.Request.Context(), "account", accountID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func StaffRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		staffID := strings.TrimSpace(c.GetHeader(HeaderStaffID))
		if staffID == "" || len(staffID) > 128 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextStaffIDKey, staffID)
		ctx := obscontext.WithActor(c.Request.Context(), "staff", staffID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func accountIDFrom(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextAccountIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func staffIDFrom(c *gin.Context) string {
	return c.GetString(contextStaffIDKey)
}
