package access

import (
	"net/http"
	"net/url"

	"github.com/abduss/labportal/internal/session"
	"github.com/gin-gonic/gin"
)

const decisionContextKey = "access.decision"

// StateSource supplies the current session snapshot.
type StateSource interface {
	State() session.State
}

// Middleware enforces guard on every request routed through it.
// Redirects carry the requested location in the "from" query parameter.
func Middleware(gate Gate, source StateSource, guard Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := gate.Evaluate(source.State(), guard, c.Request.URL.RequestURI())

		switch d.Outcome {
		case Render:
			c.Set(decisionContextKey, d)
			c.Next()
		case Redirect:
			c.Redirect(http.StatusFound, redirectTarget(d))
			c.Abort()
		case Loading:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		case Denied:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied", "denial": d.Denial})
		}
	}
}

// DecisionFrom returns the decision stored by Middleware for the current request.
func DecisionFrom(c *gin.Context) (Decision, bool) {
	v, ok := c.Get(decisionContextKey)
	if !ok {
		return Decision{}, false
	}
	d, ok := v.(Decision)
	return d, ok
}

func redirectTarget(d Decision) string {
	if d.From == "" {
		return d.Path
	}
	u, err := url.Parse(d.Path)
	if err != nil {
		return d.Path
	}
	q := u.Query()
	q.Set("from", d.From)
	u.RawQuery = q.Encode()
	return u.String()
}
