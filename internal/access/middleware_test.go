package access

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a settable Subscriber.
type fakeSource struct {
	mu     sync.Mutex
	state  session.State
	nextID int
	subs   map[int]func(session.State)
}

func newFakeSource(st session.State) *fakeSource {
	return &fakeSource{state: st, subs: map[int]func(session.State){}}
}

func (f *fakeSource) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) Subscribe(fn func(session.State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSource) Set(st session.State) {
	f.mu.Lock()
	f.state = st
	subs := make([]func(session.State), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func guardedRouter(source StateSource, guard Guard) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/*rest", Middleware(Gate{}, source, guard), func(c *gin.Context) {
		d, ok := DecisionFrom(c)
		if !ok || d.Outcome != Render {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, "admin")
	})
	return r
}

func TestMiddlewareRedirectsWithFrom(t *testing.T) {
	r := guardedRouter(newFakeSource(session.State{}), AdminOnly())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users?page=2", nil))

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/auth/login?from=%2Fadmin%2Fusers%3Fpage%3D2", rr.Header().Get("Location"))
}

func TestMiddlewareDeniesWithReason(t *testing.T) {
	r := guardedRouter(newFakeSource(signedIn(auth.RoleUser)), AdminOnly())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	require.Equal(t, http.StatusForbidden, rr.Code)
	var body struct {
		Denial Denial `json:"denial"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ReasonRole, body.Denial.Reason)
	assert.Equal(t, auth.RoleAdmin, body.Denial.RequiredRole)
	assert.Equal(t, auth.RoleUser, body.Denial.ActualRole)
}

func TestMiddlewareWaitsWhileLoading(t *testing.T) {
	r := guardedRouter(newFakeSource(session.State{IsLoading: true}), AdminOnly())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestMiddlewareRendersForAdmin(t *testing.T) {
	r := guardedRouter(newFakeSource(signedIn(auth.RoleAdmin)), AdminOnly())

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "admin", rr.Body.String())
}
