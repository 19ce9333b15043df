package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MachineAuth gates telemetry ingestion endpoints. Machines authenticate with
// the X-Machine-Key header and, optionally, a source IP allowlist. If the key
// is empty the endpoints are disabled (503) so a server cannot be deployed
// accepting unauthenticated telemetry.
func MachineAuth(machineKey string, allowedIPs []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedIPs))
	for _, ip := range allowedIPs {
		allowed[ip] = true
	}
	return func(c *gin.Context) {
		if machineKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"success": false, "message": "ingest disabled: set ingest.machine_key in config"})
			return
		}
		if len(allowed) > 0 && !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden,
				gin.H{"success": false, "message": "access denied"})
			return
		}
		if c.GetHeader("X-Machine-Key") != machineKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"success": false, "message": "unauthorized"})
			return
		}
		c.Next()
	}
}
