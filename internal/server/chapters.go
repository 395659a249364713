package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mAmineChniti/Forklore/internal/data"
)

func (s *Server) CreateChapter(c echo.Context) error {
	var req data.ChapterCreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	created, err := s.svc.Chapters.Create(c.Request().Context(), c.Param("id"), userID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Chapter created successfully", "chapter": created})
}

func (s *Server) ListChapters(c echo.Context) error {
	chapters, err := s.svc.Chapters.List(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, data.Chapters{Chapters: chapters})
}

func (s *Server) GetChapter(c echo.Context) error {
	ch, err := s.svc.Chapters.Get(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Chapter found", "chapter": ch})
}

func (s *Server) UpdateChapter(c echo.Context) error {
	var req data.ChapterUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ch, err := s.svc.Chapters.Update(c.Request().Context(), c.Param("id"), userID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Chapter updated successfully", "chapter": ch})
}

func (s *Server) DeleteChapter(c echo.Context) error {
	if err := s.svc.Chapters.Delete(c.Request().Context(), c.Param("id"), userID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Chapter deleted successfully"})
}

func (s *Server) PublishChapter(c echo.Context) error {
	ch, err := s.svc.Chapters.Publish(c.Request().Context(), c.Param("id"), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Chapter published", "chapter": ch})
}

func (s *Server) ScheduleChapter(c echo.Context) error {
	var req data.ScheduleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := data.Validate(&req); err != nil {
		return err
	}
	ch, err := s.svc.Chapters.Schedule(c.Request().Context(), c.Param("id"), userID(c), req.ScheduledAt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Chapter scheduled", "chapter": ch})
}

// ReadChapter returns 200 for a denied reading too: the body carries the preview
// and the reason.
func (s *Server) ReadChapter(c echo.Context) error {
	reading, err := s.svc.Chapters.Read(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reading)
}

func (s *Server) CheckAccess(c echo.Context) error {
	d, err := s.svc.Access.CheckAccess(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
