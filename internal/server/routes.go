package server

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/metrics"
)

// API is the set of handlers of the server.
type API struct {
	server *Server
}

var validate = newValidator()

// newValidator returns a validator that names fields the way they appear in
// requests.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form", "uri"} {
			name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return v
}

// GenerateRoutes constructs a http.Handler for the http server.
//
// The order of routes in this function is important! Gin saves a route along
// with all the middleware that will apply to the route when the
// Router.{GET,POST,etc} method is called.
func (s *Server) GenerateRoutes() http.Handler {
	a := &API{server: s}
	router := gin.New()
	router.NoRoute(a.notFoundHandler)

	router.Use(gin.Recovery())
	if s.options.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.GET("/healthz", healthHandler)

	router.Use(
		logging.Middleware(s.options.EnableLogSampling),
		TimeoutMiddleware(s.options.API.RequestTimeout),
	)

	api := router.Group("/", metrics.Middleware(s.metricsRegistry))

	// must be after TimeoutMiddleware to time out db queries.
	txn := api.Group("/", DatabaseMiddleware(s.db))
	outbound := api.Group("/", NoTransactionMiddleware(s.db))

	// these endpoints do not require authentication
	get(a, txn, "/api/version", a.Version)
	outbound.GET("/api/auth/login", rateLimitMiddleware(s.limits.login, clientKey), a.Login)
	outbound.GET("/api/auth/callback", a.Callback)

	authn := txn.Group("/", authenticatedMiddleware())
	get(a, authn, "/api/me", a.GetMe)
	get(a, authn, "/api/me/rate-limits", a.ListRateLimits)
	get(a, authn, "/api/me/grist-key", a.GetGristKey)
	delete(a, authn, "/api/me/grist-key", a.DeleteGristKey)
	post(a, authn, "/api/me/grist-key/verify", a.VerifyGristKey)
	delete(a, authn, "/api/me/sessions", a.DeleteSessions)

	outboundAuthn := outbound.Group("/", authenticatedMiddleware())
	post(a, outboundAuthn, "/api/auth/logout", a.Logout)
	put(a, outboundAuthn, "/api/me/grist-key", a.SetGristKey)

	gristAPI := outboundAuthn.Group("/api/grist", rateLimitMiddleware(s.limits.gristAPI, userKey))
	get(a, gristAPI, "/orgs", a.ListGristOrgs)
	get(a, gristAPI, "/orgs/:org/workspaces", a.ListGristWorkspaces)
	get(a, gristAPI, "/docs/:doc/tables", a.ListGristTables)
	get(a, gristAPI, "/docs/:doc/tables/:table/columns", a.ListGristColumns)

	automations := authn.Group("/api/automations", requirePublicAgent())
	get(a, automations, "", a.ListAutomations)
	post(a, automations, "", a.CreateAutomation)
	get(a, automations, "/:id", a.GetAutomation)
	put(a, automations, "/:id", a.UpdateAutomation)
	delete(a, automations, "/:id", a.DeleteAutomation)

	return router
}

type ReqHandlerFunc[Req any] func(c *gin.Context, req *Req) error
type ReqResHandlerFunc[Req, Res any] func(c *gin.Context, req *Req) (Res, error)

func get[Req, Res any](a *API, r *gin.RouterGroup, route string, handler ReqResHandlerFunc[Req, Res]) {
	r.GET(route, func(c *gin.Context) {
		req := new(Req)
		if err := bind(c, req); err != nil {
			sendAPIError(c, err)
			return
		}

		resp, err := handler(c, req)
		if err != nil {
			sendAPIError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	})
}

func post[Req, Res any](a *API, r *gin.RouterGroup, route string, handler ReqResHandlerFunc[Req, Res]) {
	r.POST(route, func(c *gin.Context) {
		req := new(Req)
		if err := bind(c, req); err != nil {
			sendAPIError(c, err)
			return
		}

		resp, err := handler(c, req)
		if err != nil {
			sendAPIError(c, err)
			return
		}

		c.JSON(http.StatusCreated, resp)
	})
}

func put[Req, Res any](a *API, r *gin.RouterGroup, route string, handler ReqResHandlerFunc[Req, Res]) {
	r.PUT(route, func(c *gin.Context) {
		req := new(Req)
		if err := bind(c, req); err != nil {
			sendAPIError(c, err)
			return
		}

		resp, err := handler(c, req)
		if err != nil {
			sendAPIError(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	})
}

func delete[Req any](a *API, r *gin.RouterGroup, route string, handler ReqHandlerFunc[Req]) {
	r.DELETE(route, func(c *gin.Context) {
		req := new(Req)
		if err := bind(c, req); err != nil {
			sendAPIError(c, err)
			return
		}

		err := handler(c, req)
		if err != nil {
			sendAPIError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
		c.Writer.WriteHeaderNow()
	})
}

func bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindUri(req); err != nil {
		return fmt.Errorf("%w: %s", internal.ErrBadRequest, err)
	}

	if err := c.ShouldBindQuery(req); err != nil {
		return fmt.Errorf("%w: %s", internal.ErrBadRequest, err)
	}

	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(req); err != nil {
			return fmt.Errorf("%w: %s", internal.ErrBadRequest, err)
		}
	}

	if err := validate.Struct(req); err != nil {
		return err
	}

	return nil
}

func init() {
	gin.DisableBindValidation()
}

func healthHandler(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (a *API) notFoundHandler(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api") {
		sendAPIError(c, internal.ErrNotFound)
		return
	}

	c.Status(http.StatusNotFound)
}

func (a *API) Version(c *gin.Context, _ *api.EmptyRequest) (*api.Version, error) {
	return &api.Version{Version: internal.FullVersion()}, nil
}
