package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/logger"
)

const (
	streamRows   = 100
	writeTimeout = 10 * time.Second
)

// SnapshotSource returns the last snapshot published by any instance.
type SnapshotSource interface {
	Latest(ctx context.Context, period domain.LeaderboardPeriod) (domain.Leaderboard, error)
}

// LeaderboardStream pushes ranked snapshots of one period to websocket
// clients: the current board on connect, then every refresh.
type LeaderboardStream struct {
	hub       *app.LeaderboardHub
	quizzes   *app.QuizService
	snapshots SnapshotSource
	log       *logger.Logger
	upgrader  websocket.Upgrader
}

func NewLeaderboardStream(hub *app.LeaderboardHub, quizzes *app.QuizService, log *logger.Logger) *LeaderboardStream {
	if log == nil {
		log = logger.Nop()
	}
	return &LeaderboardStream{
		hub:     hub,
		quizzes: quizzes,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WithSnapshots makes new connections start from src before the store
// when this instance has not published a snapshot yet.
func (s *LeaderboardStream) WithSnapshots(src SnapshotSource) *LeaderboardStream {
	s.snapshots = src
	return s
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type snapshotPayload struct {
	Period    domain.LeaderboardPeriod `json:"period"`
	UpdatedAt time.Time                `json:"updatedAt"`
	Entries   []app.LeaderboardRow     `json:"entries"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Serve handles GET /ws/leaderboard?period=daily|weekly|all-time.
func (s *LeaderboardStream) Serve(c *gin.Context) {
	period := domain.PeriodAllTime
	if raw := c.Query("period"); raw != "" {
		p, err := domain.ParsePeriod(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		period = p
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	// The server's ReadTimeout survives the hijack.
	_ = conn.SetReadDeadline(time.Time{})

	var initial *snapshotPayload
	if _, ok := s.hub.Latest(period); !ok {
		p, err := s.seed(c.Request.Context(), period)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "leaderboard unavailable"}})
			return
		}
		initial = &p
	}

	updates, cancel := s.hub.Subscribe(period)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		// Inbound frames are ignored; reading surfaces the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if initial != nil {
		if err := s.write(conn, *initial); err != nil {
			return
		}
	}
	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			payload := snapshotPayload{
				Period:    lb.Period,
				UpdatedAt: lb.UpdatedAt,
				Entries:   app.LeaderboardRows(lb.Entries, streamRows),
			}
			if err := s.write(conn, payload); err != nil {
				s.log.Debug("ws write failed", "error", err)
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// seed builds the first frame from the shared snapshot, else the store.
func (s *LeaderboardStream) seed(ctx context.Context, period domain.LeaderboardPeriod) (snapshotPayload, error) {
	if s.snapshots != nil {
		lb, err := s.snapshots.Latest(ctx, period)
		if err == nil {
			return snapshotPayload{Period: period, UpdatedAt: lb.UpdatedAt, Entries: app.LeaderboardRows(lb.Entries, streamRows)}, nil
		}
		if !domain.IsNotFound(err) {
			s.log.Warn("shared leaderboard snapshot unavailable", "period", period, "error", err)
		}
	}
	rows, err := s.quizzes.Leaderboard(ctx, period, streamRows)
	if err != nil {
		return snapshotPayload{}, err
	}
	return snapshotPayload{Period: period, UpdatedAt: time.Now().UTC(), Entries: rows}, nil
}

func (s *LeaderboardStream) write(conn *websocket.Conn, p snapshotPayload) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(outboundMessage[snapshotPayload]{Type: "leaderboard", Payload: p})
}
