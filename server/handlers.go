package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/proxypost-social/proxypost/agents"
	"github.com/proxypost-social/proxypost/governor"
	"github.com/proxypost-social/proxypost/models"
)

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func pagination(c echo.Context) (skip, limit int) {
	skip, _ = strconv.Atoi(c.QueryParam("skip"))
	if skip < 0 {
		skip = 0
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return skip, limit
}

func (s *Server) handleCreateAgent(c echo.Context) error {
	var q agents.Questionnaire
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid questionnaire")
	}

	agent, err := s.agents.Create(c.Request().Context(), requester(c), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, agent)
}

func (s *Server) handleGetAgent(c echo.Context) error {
	agent, err := s.agents.GetForUser(c.Request().Context(), requester(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(c echo.Context) error {
	var upd agents.Update
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update")
	}

	agent, err := s.agents.Update(c.Request().Context(), requester(c), upd)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agent)
}

func (s *Server) handleAgentDashboard(c echo.Context) error {
	dash, err := s.agents.GetDashboard(c.Request().Context(), requester(c), time.Now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dash)
}

func (s *Server) handlePropose(c echo.Context) error {
	var req governor.ProposeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid proposal")
	}
	if req.Kind == "" {
		req.Kind = models.ActionPostCreated
	}

	proposal, err := s.governor.Propose(c.Request().Context(), requester(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, proposal)
}

func (s *Server) handleListActions(c echo.Context) error {
	skip, limit := pagination(c)
	actions, err := s.approvals.ListForUser(c.Request().Context(), requester(c), skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, actions)
}

func (s *Server) handleApproveAction(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	post, err := s.approvals.Approve(c.Request().Context(), id, requester(c))
	if err != nil {
		return err
	}
	if post == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "approved"})
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) handleRejectAction(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := s.approvals.Reject(c.Request().Context(), id, requester(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handleEditAction(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil || body.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing content")
	}

	post, err := s.approvals.Edit(c.Request().Context(), id, requester(c), body.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) handleDeleteAction(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := s.approvals.Delete(c.Request().Context(), id, requester(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListConnections(c echo.Context) error {
	status := models.ConnectionStatus(c.QueryParam("status"))
	switch status {
	case "", models.ConnectionPending, models.ConnectionAccepted, models.ConnectionRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
	}

	conns, err := s.graph.List(c.Request().Context(), requester(c), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conns)
}

func (s *Server) handleRequestConnection(c echo.Context) error {
	// the path id here is the peer user to connect with
	to, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Kind models.ConnectionKind `json:"kind"`
	}
	// body is optional; kind defaults to friend
	_ = c.Bind(&body)

	conn, err := s.graph.Request(c.Request().Context(), requester(c), to, body.Kind, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conn)
}

func (s *Server) handleAcceptConnection(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	conn, err := s.graph.Accept(c.Request().Context(), id, requester(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conn)
}

func (s *Server) handleRejectConnection(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	conn, err := s.graph.Reject(c.Request().Context(), id, requester(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conn)
}

func (s *Server) handleUpdateConnectionKind(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Kind models.ConnectionKind `json:"kind"`
	}
	if err := c.Bind(&body); err != nil || body.Kind == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing kind")
	}

	conn, err := s.graph.UpdateKind(c.Request().Context(), id, requester(c), body.Kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conn)
}

func (s *Server) handleRemoveConnection(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := s.graph.Remove(c.Request().Context(), id, requester(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePersonalizedFeed(c echo.Context) error {
	skip, limit := pagination(c)
	posts, err := s.feedgen.GetPersonalized(c.Request().Context(), requester(c), skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) handleGlobalFeed(c echo.Context) error {
	skip, limit := pagination(c)
	posts, err := s.feedgen.GetGlobal(c.Request().Context(), skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) handleUserFeed(c echo.Context) error {
	uid, err := paramID(c, "userID")
	if err != nil {
		return err
	}

	skip, limit := pagination(c)
	posts, err := s.feedgen.GetAuthor(c.Request().Context(), uid, skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) handleCreatePost(c echo.Context) error {
	var body struct {
		Content string            `json:"content"`
		Status  models.PostStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil || body.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing content")
	}

	post, err := s.engagement.CreatePost(c.Request().Context(), requester(c), body.Content, body.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, post)
}

func (s *Server) handleListOwnPosts(c echo.Context) error {
	skip, limit := pagination(c)
	posts, err := s.engagement.ListOwn(c.Request().Context(), requester(c), skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) handleGetPost(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	post, err := s.engagement.GetOwn(c.Request().Context(), id, requester(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) handleUpdatePost(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil || body.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing content")
	}

	post, err := s.engagement.UpdatePost(c.Request().Context(), id, requester(c), body.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) handleDeletePost(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := s.engagement.DeletePost(c.Request().Context(), id, requester(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLikePost(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	like, err := s.engagement.Like(c.Request().Context(), requester(c), id, models.ActorKindHuman)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, like)
}

func (s *Server) handleUnlikePost(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := s.engagement.Unlike(c.Request().Context(), requester(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLikeStatus(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	liked, err := s.engagement.HasLiked(c.Request().Context(), requester(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"isLiked": liked})
}

func (s *Server) handleCreateComment(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil || body.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing content")
	}

	reply, err := s.engagement.CreateReply(c.Request().Context(), requester(c), id, body.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reply)
}

func (s *Server) handleListComments(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	skip, limit := pagination(c)
	replies, err := s.engagement.ListReplies(c.Request().Context(), id, skip, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, replies)
}
