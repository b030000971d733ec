// Package api exposes the quiz services over HTTP JSON and websocket, and forwards leaderboard
// updates to players through Redis pub/sub.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/travelquiz/internal/answer"
	"github.com/victornm/travelquiz/internal/content"
	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/errors"
	"github.com/victornm/travelquiz/internal/event"
	"github.com/victornm/travelquiz/internal/leaderboard"
	"github.com/victornm/travelquiz/internal/room"
	"github.com/victornm/travelquiz/internal/session"
	"github.com/victornm/travelquiz/internal/syncbridge"
)

type Config struct {
	HTTP        gin.IRouter
	EventBus    *event.Bus
	Content     content.Repository
	Room        *room.Service
	Session     *session.Service
	Answer      *answer.Service
	Leaderboard *leaderboard.Service
	Sync        *syncbridge.Service
	// Redis carries player notifications. Without it leaderboard updates reach clients through
	// the sync stream only.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	content content.Repository
	rs      *room.Service
	ss      *session.Service
	as      *answer.Service
	ls      *leaderboard.Service
	sync    *syncbridge.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		content: c.Content,
		rs:      c.Room,
		ss:      c.Session,
		as:      c.Answer,
		ls:      c.Leaderboard,
		sync:    c.Sync,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
	}

	// HTTP APIs
	v1 := c.HTTP.Group("/v1")
	v1.GET("/topics", a.ListTopics)
	v1.POST("/rooms", a.CreateRoom)
	v1.POST("/rooms/join", a.JoinRoom)

	rooms := v1.Group("/rooms/:id")
	rooms.POST("/start", a.StartQuiz)
	rooms.POST("/answers", a.SubmitAnswer)
	rooms.POST("/advance", a.AdvanceQuestion)
	rooms.GET("/players", a.ListPlayers)
	rooms.GET("/status", a.GetRoomStatus)
	rooms.GET("/question", a.GetQuestion)
	rooms.GET("/leaderboard", a.GetLeaderboard)
	rooms.GET("/qr.png", a.GetJoinCode)
	rooms.GET("/sync", a.SyncRoom)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		}, domain.EventNameLeaderboardUpdated)
	}

	return a
}

type errorBody struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)

	status := e.HTTPStatusCode()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(status, errorBody{
		Code:    e.GRPCStatus().Code().String(),
		Reason:  e.Reason,
		Message: e.Message,
	})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithReason("INVALID_REQUEST"),
			errors.WithMessagef("invalid request body: %v", err),
		))
		return false
	}

	return true
}
