package server

import (
	"net/http"

	"github.com/abduss/labportal/internal/access"
	"github.com/abduss/labportal/internal/permission"
	"github.com/abduss/labportal/internal/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type page struct {
	name  string
	path  string
	guard access.Guard
}

// portal owns the guarded pages of the client and keeps their decisions current.
type portal struct {
	ctrl    *session.Controller
	gate    access.Gate
	logger  *zap.Logger
	pages   []page
	regions map[string]*access.Region
}

func portalRegions(cfg access.Gate) []page {
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = access.DefaultLoginPath
	}
	homePath := cfg.HomePath
	if homePath == "" {
		homePath = access.DefaultHomePath
	}
	return []page{
		{name: "login", path: loginPath, guard: access.GuestOnly()},
		{name: "dashboard", path: homePath, guard: access.Authenticated()},
		{name: "bookings", path: "/bookings", guard: access.RequirePermissions(access.ModeAll, permission.BookingsCreate)},
		{name: "lab_queue", path: "/lab/queue", guard: access.LabTechnicianOnly()},
		{name: "admin", path: "/admin", guard: access.AdminOnly()},
		{name: "reports", path: "/reports", guard: access.RequirePermissions(access.ModeAny, permission.ReportsViewOwn, permission.ReportsViewAll)},
	}
}

func newPortal(deps Dependencies) *portal {
	p := &portal{
		ctrl:    deps.Session,
		gate:    deps.Gate,
		logger:  deps.Logger,
		pages:   portalRegions(deps.Gate),
		regions: make(map[string]*access.Region),
	}
	for _, pg := range p.pages {
		name := pg.name
		p.regions[name] = access.NewRegion(name, pg.path, p.gate, p.ctrl, pg.guard, func(d access.Decision) {
			p.logger.Debug("region decision changed",
				zap.String("region", name),
				zap.Stringer("outcome", d.Outcome),
			)
		})
	}
	return p
}

func (p *portal) register(router *gin.Engine) {
	for _, pg := range p.pages {
		router.GET(pg.path,
			access.Middleware(p.gate, p.ctrl, pg.guard),
			recordActivity(p.ctrl),
			p.render(pg.name),
		)
	}
}

func (p *portal) render(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := p.ctrl.State()
		c.JSON(http.StatusOK, gin.H{
			"region":      name,
			"user":        st.User,
			"permissions": st.Permissions.Keys(),
		})
	}
}

func (p *portal) decisions() map[string]access.Decision {
	out := make(map[string]access.Decision, len(p.regions))
	for name, region := range p.regions {
		out[name] = region.Decision()
	}
	return out
}

// recordActivity counts a rendered page as user activity.
func recordActivity(ctrl *session.Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ctrl.State().IsAuthenticated {
			ctrl.RecordSignal(session.SignalRequest)
		}
		c.Next()
	}
}
