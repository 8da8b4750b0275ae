package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skatespot-io/skatespot/internal/middleware"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"github.com/skatespot-io/skatespot/internal/modules/serializer"
	"github.com/skatespot-io/skatespot/internal/modules/service"
	"github.com/skatespot-io/skatespot/internal/pkg/paging"
)

type SessionHandler struct {
	svc service.SchedulerService
}

func NewSessionHandler(svc service.SchedulerService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// respondSchedulerErr translates the engine error taxonomy to status codes.
func respondSchedulerErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSpotNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrRSVPNotFound):
		c.JSON(http.StatusNotFound, serializer.Err(http.StatusNotFound, err.Error(), err))
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, serializer.Err(http.StatusForbidden, err.Error(), err))
	case errors.Is(err, service.ErrSessionFull),
		errors.Is(err, service.ErrSessionInactive):
		c.JSON(http.StatusConflict, serializer.Err(http.StatusConflict, err.Error(), err))
	case errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, paging.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, serializer.ParamErr(err.Error(), err))
	default:
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
	}
}

type CreateSessionReq struct {
	Title        string    `json:"title" binding:"required"`
	Description  *string   `json:"description"`
	MeetLocation *string   `json:"meet_location"`
	SkillLevel   *string   `json:"skill_level"`
	StartTime    time.Time `json:"start_time" binding:"required"`
	EndTime      time.Time `json:"end_time" binding:"required,gtfield=StartTime"`
	Capacity     *int      `json:"capacity" binding:"omitempty,min=1"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	spotID, err := uuid.Parse(c.Param("spot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid spot id", err))
		return
	}

	var req CreateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	session, err := h.svc.CreateSession(c.Request.Context(), spotID, actor, service.CreateSessionInput{
		Title:        req.Title,
		Description:  req.Description,
		MeetLocation: req.MeetLocation,
		SkillLevel:   req.SkillLevel,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Capacity:     req.Capacity,
	})
	if err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, serializer.Response{Data: serializer.BuildSession(session, &actor.ID)})
}

type ListSessionsReq struct {
	Limit  *int   `form:"limit" json:"limit" binding:"omitempty,min=0,max=200"`
	Cursor string `form:"cursor" json:"cursor"`
}

func (h *SessionHandler) ListUpcomingSessions(c *gin.Context) {
	spotID, err := uuid.Parse(c.Param("spot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid spot id", err))
		return
	}

	var req ListSessionsReq
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	limit := 50
	if req.Limit != nil {
		limit = *req.Limit
	}

	out, err := h.svc.ListUpcomingSessions(c.Request.Context(), service.ListUpcomingInput{
		SpotID: spotID,
		Limit:  limit,
		Cursor: req.Cursor,
	})
	if err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: gin.H{
		"items":       serializer.BuildSessionList(out.Items, &actor.ID),
		"next_cursor": out.NextCursor,
		"has_more":    out.HasMore,
	}})
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid session id", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	session, err := h.svc.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: serializer.BuildSession(session, &actor.ID)})
}

type UpdateSessionReq struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	MeetLocation *string    `json:"meet_location"`
	SkillLevel   *string    `json:"skill_level"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Capacity     *int       `json:"capacity" binding:"omitempty,min=1"`
	Status       *string    `json:"status" binding:"omitempty,oneof=scheduled cancelled completed"`
}

func (h *SessionHandler) UpdateSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid session id", err))
		return
	}

	var req UpdateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	in := service.UpdateSessionInput{
		Title:        req.Title,
		Description:  req.Description,
		MeetLocation: req.MeetLocation,
		SkillLevel:   req.SkillLevel,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Capacity:     req.Capacity,
	}
	if req.Status != nil {
		status := model.SessionStatus(*req.Status)
		in.Status = &status
	}

	session, err := h.svc.UpdateSession(c.Request.Context(), sessionID, actor, in)
	if err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: serializer.BuildSession(session, &actor.ID)})
}

type ChangeStatusReq struct {
	Status string `json:"status" binding:"required,oneof=scheduled cancelled completed"`
}

func (h *SessionHandler) ChangeStatus(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid session id", err))
		return
	}

	var req ChangeStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	session, err := h.svc.ChangeStatus(c.Request.Context(), sessionID, actor, model.SessionStatus(req.Status))
	if err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: serializer.BuildSession(session, &actor.ID)})
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid session id", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	if err := h.svc.DeleteSession(c.Request.Context(), sessionID, actor); err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{})
}

type RSVPReq struct {
	Response string  `json:"response" binding:"required,oneof=going maybe waitlist"`
	Note     *string `json:"note"`
}

func (h *SessionHandler) RSVPSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid session id", err))
		return
	}

	var req RSVPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	session, err := h.svc.RSVPSession(c.Request.Context(), sessionID, actor, service.RSVPInput{
		Response: model.RSVPResponse(req.Response),
		Note:     req.Note,
	})
	if err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: serializer.BuildSession(session, &actor.ID)})
}

func (h *SessionHandler) WithdrawRSVP(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid session id", err))
		return
	}

	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr(""))
		return
	}

	session, err := h.svc.WithdrawRSVP(c.Request.Context(), sessionID, actor)
	if err != nil {
		respondSchedulerErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: serializer.BuildSession(session, &actor.ID)})
}
