package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/common/middleware"
	"schoolboard/server/school/domain"
	"schoolboard/server/school/service"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

// serveStream opens a watch before upgrading, so authorization failures are
// plain HTTP errors. After the upgrade each snapshot is written as one JSON
// text frame until the client goes away.
func serveStream[T any](c *gin.Context, upgrader *websocket.Upgrader, name string, open func(ctx context.Context) (<-chan service.Snapshot[T], error)) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	snapshots, err := open(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		commonlog.Warnf("event=school_stream action=upgrade status=failed stream=%s error=%v", name, err)
		return
	}
	defer conn.Close()

	email := middleware.Email(c)
	commonlog.Infof("event=school_stream action=open status=ok stream=%s email=%s", name, email)
	defer commonlog.Infof("event=school_stream action=close status=ok stream=%s email=%s", name, email)

	// Clients never send anything meaningful; reading only surfaces closes
	// and keeps pong handling alive.
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
				return
			}
			if snap.Items == nil {
				snap.Items = []T{}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) streamConversations(c *gin.Context) {
	sess := sessionFrom(c)
	serveStream(c, &h.upgrader, "conversations", func(ctx context.Context) (<-chan service.Snapshot[domain.ConversationEntry], error) {
		return h.svc.Conversations.WatchConversations(ctx, sess)
	})
}

func (h *Handler) streamMessages(c *gin.Context) {
	sess := sessionFrom(c)
	id := c.Param("id")
	serveStream(c, &h.upgrader, "messages", func(ctx context.Context) (<-chan service.Snapshot[domain.Message], error) {
		return h.svc.Conversations.WatchMessages(ctx, sess, id)
	})
}

func (h *Handler) streamGrades(c *gin.Context) {
	sess := sessionFrom(c)
	serveStream(c, &h.upgrader, "announcement_grades", func(ctx context.Context) (<-chan service.Snapshot[domain.GradeSummary], error) {
		return h.svc.Announcements.WatchGrades(ctx, sess)
	})
}

func (h *Handler) streamAnnouncements(c *gin.Context) {
	grade, ok := gradeParam(c)
	if !ok {
		return
	}
	sess := sessionFrom(c)
	serveStream(c, &h.upgrader, "announcements", func(ctx context.Context) (<-chan service.Snapshot[domain.Announcement], error) {
		return h.svc.Announcements.WatchAnnouncements(ctx, sess, grade)
	})
}
