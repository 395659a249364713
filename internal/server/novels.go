package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mAmineChniti/Forklore/internal/apperrors"
	"github.com/mAmineChniti/Forklore/internal/data"
)

func pagination(c echo.Context) (data.Pagination, error) {
	var p data.Pagination
	err := echo.QueryParamsBinder(c).
		Int("page", &p.Page).
		Int("limit", &p.Limit).
		BindError()
	if err != nil {
		return p, apperrors.InvalidArgument("page", "page and limit must be integers")
	}
	if err := data.Validate(&p); err != nil {
		return p, err
	}
	return p, nil
}

func (s *Server) CreateNovel(c echo.Context) error {
	var req data.NovelCreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	novel, main, err := s.svc.Novels.Create(c.Request().Context(), userID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Novel created successfully", "novel": novel, "main_branch": main})
}

func (s *Server) ListNovels(c echo.Context) error {
	p, err := pagination(c)
	if err != nil {
		return err
	}
	novels, err := s.svc.Novels.List(c.Request().Context(), data.NovelQuery{
		Genre:      c.QueryParam("genre"),
		Status:     data.NovelStatus(c.QueryParam("status")),
		Pagination: p,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Novels found", "novels": novels})
}

func (s *Server) GetNovel(c echo.Context) error {
	novel, err := s.svc.Novels.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Novel found", "novel": novel})
}

func (s *Server) UpdateNovel(c echo.Context) error {
	var req data.NovelUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	novel, err := s.svc.Novels.Update(c.Request().Context(), userID(c), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Novel updated successfully", "novel": novel})
}

func (s *Server) DeleteNovel(c echo.Context) error {
	if err := s.svc.Novels.Delete(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Novel deleted successfully"})
}

func (s *Server) CheckAgeRating(c echo.Context) error {
	ok, err := s.svc.Access.CheckAgeRating(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"allowed": ok})
}
