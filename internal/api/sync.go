package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/travelquiz/internal/room"
	"github.com/victornm/travelquiz/internal/syncbridge"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// SyncMessage is one snapshot of the room as the connected player sees it.
type SyncMessage struct {
	Room    Room     `json:"room"`
	Players []Player `json:"players"`
}

// SyncRoom streams room snapshots over a websocket until the quiz finishes or the client leaves.
// Closing the socket is how a client leaves the room: nothing is written.
func (a *API) SyncRoom(c *gin.Context) {
	roomID, viewer := c.Param("id"), c.Query("player")

	if _, err := a.rs.GetRoom(c.Request.Context(), room.GetRoomRequest{RoomID: roomID}); err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	// The client sends nothing, reading only notices it going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = a.sync.Watch(ctx, roomID, func(s syncbridge.Snapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(SyncMessage{
			Room:    toRoom(s.Room),
			Players: toPlayers(s.Players, viewer),
		})
	})
	if err != nil {
		slog.WarnContext(ctx, "api: sync stream ended", "room_id", roomID, "error", err)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
}
