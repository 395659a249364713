package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(s.requestLogger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(s.serviceName))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.DEBUG(e)

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusMovedPermanently, "/api/v1")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	auth := s.JWTMiddleware()
	optional := s.OptionalJWTMiddleware()
	v1 := e.Group("/api/v1")
	v1.GET("/health", s.healthHandler)

	v1.POST("/novels", s.CreateNovel, auth)
	v1.GET("/novels", s.ListNovels)
	v1.GET("/novels/:id", s.GetNovel)
	v1.PATCH("/novels/:id", s.UpdateNovel, auth)
	v1.DELETE("/novels/:id", s.DeleteNovel, auth)
	v1.GET("/novels/:id/age-check", s.CheckAgeRating, optional)

	v1.POST("/novels/:id/branches", s.ForkBranch, auth)
	v1.GET("/novels/:id/branches", s.ListPublicBranches)
	v1.GET("/novels/:id/branches/linked", s.ListLinkedBranches)
	v1.GET("/novels/:id/branches/main", s.GetMainBranch)
	v1.GET("/novels/:id/link-requests", s.ListLinkRequests, auth)

	v1.GET("/branches/:id", s.GetBranch, optional)
	v1.PATCH("/branches/:id", s.UpdateBranch, auth)
	v1.DELETE("/branches/:id", s.DeleteBranch, auth)
	v1.PUT("/branches/:id/visibility", s.ChangeVisibility, auth)
	v1.POST("/branches/:id/candidate", s.MarkAsCandidate, auth)
	v1.POST("/branches/:id/merge", s.MergeToCanon, auth)
	v1.POST("/branches/:id/votes", s.Vote, auth)
	v1.DELETE("/branches/:id/votes", s.Unvote, auth)
	v1.GET("/branches/:id/votes/me", s.HasVoted, auth)
	v1.POST("/branches/:id/link-requests", s.RequestLink, auth)
	v1.POST("/branches/:id/chapters", s.CreateChapter, auth)
	v1.GET("/branches/:id/chapters", s.ListChapters, optional)

	v1.GET("/link-requests/:id", s.GetLinkRequest, auth)
	v1.POST("/link-requests/:id/approve", s.ApproveLink, auth)
	v1.POST("/link-requests/:id/reject", s.RejectLink, auth)

	v1.GET("/chapters/:id", s.GetChapter, optional)
	v1.PATCH("/chapters/:id", s.UpdateChapter, auth)
	v1.DELETE("/chapters/:id", s.DeleteChapter, auth)
	v1.POST("/chapters/:id/publish", s.PublishChapter, auth)
	v1.POST("/chapters/:id/schedule", s.ScheduleChapter, auth)
	v1.GET("/chapters/:id/read", s.ReadChapter, optional)
	v1.GET("/chapters/:id/access", s.CheckAccess, optional)
	v1.POST("/chapters/:id/purchase", s.PurchaseChapter, auth)

	v1.PUT("/users/me", s.SyncUser, auth)
	v1.GET("/users/me", s.GetUser, auth)
	v1.GET("/purchases", s.ListPurchases, auth)

	v1.POST("/subscriptions", s.Subscribe, auth)
	v1.GET("/subscriptions/me", s.SubscriptionStatus, auth)
	v1.PATCH("/subscriptions/me", s.ChangePlan, auth)
	v1.DELETE("/subscriptions/me", s.CancelSubscription, auth)
	v1.GET("/subscriptions/history", s.SubscriptionHistory, auth)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Not found"})
	})

	return e
}

// DEBUG dumps pretty-printed request and response bodies at debug level.
func (s *Server) DEBUG(e *echo.Echo) {
	if !s.debug {
		return
	}
	e.Use(middleware.BodyDump(func(c echo.Context, reqBody, resBody []byte) {
		s.logger.Debug("request body", zap.String("route", c.Path()), zap.String("body", prettyJSON(reqBody)))
		s.logger.Debug("response body", zap.String("route", c.Path()), zap.String("body", prettyJSON(resBody)))
	}))
}

func prettyJSON(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var formatted any
	if err := json.Unmarshal(body, &formatted); err != nil {
		return string(body)
	}
	out, err := json.MarshalIndent(formatted, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(out)
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperrors.InvalidArgument("body", "Invalid request body")
	}
	return nil
}

func (s *Server) healthHandler(c echo.Context) error {
	health, err := s.db.Health(c.Request().Context())
	if err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, health)
	}
	return c.JSON(http.StatusOK, health)
}
