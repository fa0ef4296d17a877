// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package httpapi implements the REST surface: session upload/list/
// detail/delete, the websocket upgrade endpoint, and liveness/metrics
// endpoints, wired together with C8 Auth & Session Ownership.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/datachat-oss/datachat/internal/authn"
)

const identityKey = "datachat_identity"

// SetIdentity stores the authenticated caller's identity in the gin
// context for downstream handlers.
func SetIdentity(c *gin.Context, id authn.Identity) {
	c.Set(identityKey, id)
}

// GetIdentity retrieves the identity AuthMiddleware stored, if any.
func GetIdentity(c *gin.Context) (authn.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return authn.Identity{}, false
	}
	id, ok := v.(authn.Identity)
	return id, ok
}

// AuthMiddleware authenticates every request via provider, extracting a
// bearer token from the Authorization header.
func AuthMiddleware(provider authn.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		id, err := provider.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		SetIdentity(c, id)
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
