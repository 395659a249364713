package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/metrics"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

var errInvalidTokenFormat = errors.New("invalid token format")

// validateToken parses a bearer token and returns its subject as the user id.
func (s *Server) validateToken(authHeader string) (string, error) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errInvalidTokenFormat
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}

func (s *Server) JWTMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token format")
			}

			userID, err := s.validateToken(authHeader)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized: Invalid or expired token")
			}

			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// OptionalJWTMiddleware identifies the caller when a token is sent and lets anonymous
// requests through. A malformed or expired token is still rejected.
func (s *Server) OptionalJWTMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}
			userID, err := s.validateToken(authHeader)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized: Invalid or expired token")
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// userID is the authenticated caller, or "" for an anonymous request.
func userID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
				if id == "" {
					id = uuid.NewString()
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordHTTPRequest(req.Method, route, strconv.Itoa(res.Status), elapsed.Seconds())

			s.logger.Info("request",
				zap.String("request_id", id),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("route", route),
				zap.Int("status", res.Status),
				zap.String("remote_ip", c.RealIP()),
				zap.String("user_agent", req.UserAgent()),
				zap.Duration("response_time", elapsed),
				zap.Int64("response_size", res.Size),
			)
			return nil
		}
	}
}

type ErrorResponse struct {
	Message string            `json:"message"`
	TraceID string            `json:"trace_id,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// errorHandler renders domain errors with their kind's status. Anything else is a 500.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"
	var meta map[string]string

	var he *echo.HTTPError
	var de *apperrors.Error
	switch {
	case errors.As(err, &de):
		code = de.Kind.HTTPStatus()
		message = de.Message
		meta = de.Metadata
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("api is returning an error", zap.String("route", c.Path()), zap.Error(err))
	}

	resp := ErrorResponse{Message: message, Meta: meta}
	if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
		resp.TraceID = sc.TraceID().String()
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, resp)
}
