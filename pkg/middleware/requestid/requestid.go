package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// Header is echoed on every response so clients can quote the ID when
	// reporting a scheduling problem.
	Header = "X-Request-ID"

	contextKey = "request_id"

	// Inbound IDs longer than this are replaced rather than trusted; they
	// end up in log lines and error envelopes verbatim.
	maxInboundLength = 64
)

// Middleware tags each request with an ID, reusing a sane inbound one so
// gateway-assigned IDs survive into the logs.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(Header)
		if reqID == "" || len(reqID) > maxInboundLength {
			reqID = uuid.NewString()
		}

		c.Set(contextKey, reqID)
		c.Writer.Header().Set(Header, reqID)

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
