package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mAmineChniti/Forklore/internal/data"
)

func (s *Server) SyncUser(c echo.Context) error {
	var req data.UserProfile
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := s.svc.Users.Sync(c.Request().Context(), userID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Profile saved", "user": u})
}

func (s *Server) GetUser(c echo.Context) error {
	u, err := s.svc.Users.Get(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "User found", "user": u})
}

func (s *Server) PurchaseChapter(c echo.Context) error {
	p, err := s.svc.Purchases.Purchase(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Chapter purchased", "purchase": p})
}

func (s *Server) ListPurchases(c echo.Context) error {
	purchases, err := s.svc.Purchases.List(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"purchases": purchases})
}

func (s *Server) Subscribe(c echo.Context) error {
	var req data.SubscribeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sub, err := s.svc.Subscriptions.Subscribe(c.Request().Context(), userID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Subscribed", "subscription": sub})
}

func (s *Server) SubscriptionStatus(c echo.Context) error {
	sub, err := s.svc.Subscriptions.Status(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"active": sub != nil, "subscription": sub})
}

func (s *Server) ChangePlan(c echo.Context) error {
	var req data.ChangePlanRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sub, err := s.svc.Subscriptions.ChangePlan(c.Request().Context(), userID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Plan changed", "subscription": sub})
}

func (s *Server) CancelSubscription(c echo.Context) error {
	sub, err := s.svc.Subscriptions.Cancel(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Subscription cancelled", "subscription": sub})
}

func (s *Server) SubscriptionHistory(c echo.Context) error {
	history, err := s.svc.Subscriptions.History(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"subscriptions": history})
}
