package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/victornm/travelquiz/internal/answer"
	"github.com/victornm/travelquiz/internal/domain"
	"github.com/victornm/travelquiz/internal/leaderboard"
	"github.com/victornm/travelquiz/internal/room"
	"github.com/victornm/travelquiz/internal/session"
)

const qrSize = 256

func (a *API) ListTopics(c *gin.Context) {
	ts, err := a.content.ListTopics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"topics": toTopics(ts)})
}

type (
	CreateRoomRequest struct {
		SubtopicID int64  `json:"subtopicId" binding:"required"`
		HostName   string `json:"hostName"`
	}

	CreateRoomResponse struct {
		RoomID       string `json:"roomId"`
		Pin          string `json:"pin"`
		HostPlayerID string `json:"hostPlayerId"`
		SubtopicID   int64  `json:"subtopicId"`
		TopicID      int64  `json:"topicId"`
	}
)

func (a *API) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.rs.CreateRoom(c.Request.Context(), room.CreateRoomRequest{
		SubtopicID: req.SubtopicID,
		HostName:   req.HostName,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateRoomResponse{
		RoomID:       res.Room.ID,
		Pin:          res.Room.Pin,
		HostPlayerID: res.Host.ID,
		SubtopicID:   res.Room.SubtopicID,
		TopicID:      res.TopicID,
	})
}

type (
	JoinRoomRequest struct {
		Pin        string `json:"pin"`
		PlayerName string `json:"playerName"`
	}

	JoinRoomResponse struct {
		RoomID     string `json:"roomId"`
		PlayerID   string `json:"playerId"`
		SubtopicID int64  `json:"subtopicId"`
		TopicID    int64  `json:"topicId"`
		RoomStatus string `json:"roomStatus"`
	}
)

func (a *API) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.rs.JoinRoom(c.Request.Context(), room.JoinRoomRequest{
		Pin:        req.Pin,
		PlayerName: req.PlayerName,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, JoinRoomResponse{
		RoomID:     res.Room.ID,
		PlayerID:   res.Player.ID,
		SubtopicID: res.Room.SubtopicID,
		TopicID:    res.TopicID,
		RoomStatus: string(res.Room.Status),
	})
}

type StartQuizRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

func (a *API) StartQuiz(c *gin.Context) {
	var req StartQuizRequest
	if !bind(c, &req) {
		return
	}

	r, err := a.ss.StartQuiz(c.Request.Context(), session.StartQuizRequest{
		RoomID:   c.Param("id"),
		PlayerID: req.PlayerID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoom(*r))
}

type (
	SubmitAnswerRequest struct {
		PlayerID       string  `json:"playerId" binding:"required"`
		QuestionID     int64   `json:"questionId" binding:"required"`
		ChoiceID       int64   `json:"choiceId" binding:"required"`
		ElapsedSeconds float64 `json:"elapsedSeconds"`
	}

	SubmitAnswerResponse struct {
		Correct  bool `json:"correct"`
		Points   int  `json:"points"`
		Replayed bool `json:"replayed"`
	}
)

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.as.SubmitAnswer(c.Request.Context(), answer.SubmitAnswerRequest{
		RoomID:         c.Param("id"),
		PlayerID:       req.PlayerID,
		QuestionID:     req.QuestionID,
		ChoiceID:       req.ChoiceID,
		ElapsedSeconds: req.ElapsedSeconds,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitAnswerResponse{
		Correct:  res.Result.Correct,
		Points:   res.Result.Points,
		Replayed: res.Replayed,
	})
}

type (
	AdvanceQuestionRequest struct {
		PlayerID  string `json:"playerId" binding:"required"`
		FromIndex *int   `json:"fromIndex" binding:"required,min=0"`
	}

	AdvanceQuestionResponse struct {
		// Index is null once the quiz finished.
		Index    *int `json:"index"`
		Finished bool `json:"finished"`
		Advanced bool `json:"advanced"`
	}
)

func (a *API) AdvanceQuestion(c *gin.Context) {
	var req AdvanceQuestionRequest
	if !bind(c, &req) {
		return
	}

	res, err := a.ss.AdvanceQuestion(c.Request.Context(), session.AdvanceQuestionRequest{
		RoomID:    c.Param("id"),
		PlayerID:  req.PlayerID,
		FromIndex: *req.FromIndex,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, AdvanceQuestionResponse{
		Index:    res.Room.CurrentQuestionIndex,
		Finished: res.Room.Status == domain.StatusFinished,
		Advanced: res.Advanced,
	})
}

func (a *API) ListPlayers(c *gin.Context) {
	ps, err := a.rs.ListPlayers(c.Request.Context(), room.ListPlayersRequest{RoomID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"players": toPlayers(ps, c.Query("viewer"))})
}

func (a *API) GetRoomStatus(c *gin.Context) {
	r, err := a.rs.GetRoom(c.Request.Context(), room.GetRoomRequest{RoomID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoom(*r))
}

type GetQuestionResponse struct {
	Index    int       `json:"index"`
	Total    int       `json:"total"`
	Question Question  `json:"question"`
	Deadline time.Time `json:"deadline"`
}

func (a *API) GetQuestion(c *gin.Context) {
	res, err := a.ss.GetQuestion(c.Request.Context(), session.GetQuestionRequest{RoomID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, GetQuestionResponse{
		Index:    res.Index,
		Total:    res.Total,
		Question: toQuestion(res.Question),
		Deadline: res.Deadline,
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	viewer := c.Query("viewer")

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		RoomID:   c.Param("id"),
		ViewerID: viewer,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l, viewer))
}

// GetJoinCode renders the room pin as a QR code for players to scan.
func (a *API) GetJoinCode(c *gin.Context) {
	r, err := a.rs.GetRoom(c.Request.Context(), room.GetRoomRequest{RoomID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}

	png, err := qrcode.Encode(r.Pin, qrcode.Medium, qrSize)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
