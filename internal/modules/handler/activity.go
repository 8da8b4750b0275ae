package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skatespot-io/skatespot/internal/middleware"
	"github.com/skatespot-io/skatespot/internal/modules/serializer"
	"github.com/skatespot-io/skatespot/internal/modules/service"
	"github.com/skatespot-io/skatespot/internal/pkg/paging"
)

type ActivityHandler struct {
	svc service.ActivityFeedService
}

func NewActivityHandler(svc service.ActivityFeedService) *ActivityHandler {
	return &ActivityHandler{svc: svc}
}

type ListActivitiesReq struct {
	Limit  *int   `form:"limit" json:"limit" binding:"omitempty,min=0,max=200"`
	Cursor string `form:"cursor" json:"cursor"`
}

// ListMyActivities returns the calling actor's feed, newest first.
func (h *ActivityHandler) ListMyActivities(c *gin.Context) {
	var req ListActivitiesReq
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

	out, err := h.svc.ListActivities(c.Request.Context(), service.ListActivitiesInput{
		ActorID: actor.ID,
		Limit:   limit,
		Cursor:  req.Cursor,
	})
	if err != nil {
		if errors.Is(err, paging.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, serializer.ParamErr(err.Error(), err))
			return
		}
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: out})
}
