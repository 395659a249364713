package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mAmineChniti/Forklore/internal/data"
)

func (s *Server) ForkBranch(c echo.Context) error {
	var req data.ForkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	forked, err := s.svc.Branches.Fork(c.Request().Context(), c.Param("id"), userID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Branch forked successfully", "branch": forked})
}

func (s *Server) ListPublicBranches(c echo.Context) error {
	p, err := pagination(c)
	if err != nil {
		return err
	}
	sort := data.BranchSort(c.QueryParam("sort"))
	branches, err := s.svc.Branches.ListPublic(c.Request().Context(), c.Param("id"), sort, p)
	if err != nil {
		return err
	}
	p = p.Normalize()
	return c.JSON(http.StatusOK, data.Branches{Branches: branches, Page: p.Page, Limit: p.Limit})
}

func (s *Server) ListLinkedBranches(c echo.Context) error {
	branches, err := s.svc.Branches.ListLinked(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, data.Branches{Branches: branches})
}

func (s *Server) GetMainBranch(c echo.Context) error {
	main, err := s.svc.Branches.GetMain(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Branch found", "branch": main})
}

func (s *Server) GetBranch(c echo.Context) error {
	b, err := s.svc.Branches.Get(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Branch found", "branch": b})
}

func (s *Server) UpdateBranch(c echo.Context) error {
	var req data.BranchUpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	b, err := s.svc.Branches.Update(c.Request().Context(), userID(c), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Branch updated successfully", "branch": b})
}

func (s *Server) DeleteBranch(c echo.Context) error {
	if err := s.svc.Branches.Delete(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Branch deleted successfully"})
}

func (s *Server) ChangeVisibility(c echo.Context) error {
	var req data.VisibilityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := data.Validate(&req); err != nil {
		return err
	}
	b, err := s.svc.Branches.ChangeVisibility(c.Request().Context(), userID(c), c.Param("id"), req.Visibility)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Visibility changed successfully", "branch": b})
}

func (s *Server) MarkAsCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.svc.Branches.AuthorizeCanonReview(ctx, userID(c), c.Param("id")); err != nil {
		return err
	}
	b, err := s.svc.Branches.MarkAsCandidate(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Branch marked as canon candidate", "branch": b})
}

func (s *Server) MergeToCanon(c echo.Context) error {
	var req data.MergeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.svc.Branches.AuthorizeCanonReview(ctx, userID(c), c.Param("id")); err != nil {
		return err
	}
	b, err := s.svc.Branches.MergeToCanon(ctx, c.Param("id"), req.AtChapter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Branch merged to canon", "branch": b})
}

func (s *Server) Vote(c echo.Context) error {
	if err := s.svc.Votes.Vote(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Vote recorded"})
}

func (s *Server) Unvote(c echo.Context) error {
	if err := s.svc.Votes.Unvote(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Vote removed"})
}

func (s *Server) HasVoted(c echo.Context) error {
	voted, err := s.svc.Votes.HasVoted(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"voted": voted})
}

func (s *Server) RequestLink(c echo.Context) error {
	var req data.LinkRequestCreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	lr, err := s.svc.LinkRequests.RequestLink(c.Request().Context(), c.Param("id"), userID(c), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{"message": "Link request created", "link_request": lr})
}

func (s *Server) GetLinkRequest(c echo.Context) error {
	lr, err := s.svc.LinkRequests.Get(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Link request found", "link_request": lr})
}

func (s *Server) ListLinkRequests(c echo.Context) error {
	status := data.LinkRequestStatus(c.QueryParam("status"))
	requests, err := s.svc.LinkRequests.ListForNovel(c.Request().Context(), userID(c), c.Param("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, data.LinkRequests{LinkRequests: requests})
}

func (s *Server) ApproveLink(c echo.Context) error {
	var req data.LinkReviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	lr, err := s.svc.LinkRequests.ApproveLink(c.Request().Context(), c.Param("id"), userID(c), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Link request approved", "link_request": lr})
}

func (s *Server) RejectLink(c echo.Context) error {
	var req data.LinkReviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	lr, err := s.svc.LinkRequests.RejectLink(c.Request().Context(), c.Param("id"), userID(c), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Link request rejected", "link_request": lr})
}
