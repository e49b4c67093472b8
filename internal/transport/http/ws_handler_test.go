package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizstreak-service/internal/domain"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload snapshotPayload `json:"payload"`
}

func dialStream(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/leaderboard" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	var msg wsMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "leaderboard" {
		t.Fatalf("expected leaderboard message, got %s", msg.Type)
	}
	return msg
}

func TestLeaderboardStreamSeedsAndPushes(t *testing.T) {
	f := newFixture(t)
	f.store.PutLeaderboardEntry(domain.LeaderboardEntry{
		Period: domain.PeriodWeekly, UserID: "u1", Username: "ada", TotalPoints: 300, Rank: 1,
	})
	server := httptest.NewServer(f.router)
	defer server.Close()

	conn := dialStream(t, server, "?period=weekly")
	defer conn.Close()

	initial := readSnapshot(t, conn)
	if initial.Payload.Period != domain.PeriodWeekly || len(initial.Payload.Entries) != 1 || initial.Payload.Entries[0].Points != 300 {
		t.Fatalf("unexpected initial snapshot: %+v", initial.Payload)
	}

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.SubscriberCount(domain.PeriodWeekly) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	f.hub.Publish(domain.Leaderboard{
		Period: domain.PeriodWeekly,
		Entries: []domain.LeaderboardEntry{
			{Period: domain.PeriodWeekly, UserID: "u2", Username: "grace", TotalPoints: 400, Rank: 1},
			{Period: domain.PeriodWeekly, UserID: "u1", Username: "ada", TotalPoints: 300, Rank: 2},
		},
		UpdatedAt: testNow,
	})
	update := readSnapshot(t, conn)
	if len(update.Payload.Entries) != 2 || update.Payload.Entries[0].Username != "grace" {
		t.Fatalf("unexpected pushed snapshot: %+v", update.Payload)
	}
	if !update.Payload.UpdatedAt.Equal(testNow) {
		t.Fatalf("snapshot lost its timestamp: %v", update.Payload.UpdatedAt)
	}
}

func TestLeaderboardStreamUsesPublishedSnapshot(t *testing.T) {
	f := newFixture(t)
	f.hub.Publish(domain.Leaderboard{
		Period:    domain.PeriodDaily,
		Entries:   []domain.LeaderboardEntry{{Period: domain.PeriodDaily, UserID: "u1", Username: "ada", PointsToday: 40, Rank: 1}},
		UpdatedAt: testNow,
	})
	server := httptest.NewServer(f.router)
	defer server.Close()

	conn := dialStream(t, server, "?period=daily")
	defer conn.Close()

	msg := readSnapshot(t, conn)
	if len(msg.Payload.Entries) != 1 || msg.Payload.Entries[0].Points != 40 {
		t.Fatalf("expected hub snapshot, got %+v", msg.Payload)
	}
}

func TestLeaderboardStreamRejectsUnknownPeriod(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/leaderboard?period=yearly", nil))
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestLeaderboardStreamUnsubscribesOnClose(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(f.router)
	defer server.Close()

	conn := dialStream(t, server, "")
	readSnapshot(t, conn)
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.SubscriberCount(domain.PeriodAllTime) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for f.hub.SubscriberCount(domain.PeriodAllTime) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type staticSnapshots map[domain.LeaderboardPeriod]domain.Leaderboard

func (s staticSnapshots) Latest(_ context.Context, period domain.LeaderboardPeriod) (domain.Leaderboard, error) {
	lb, ok := s[period]
	if !ok {
		return domain.Leaderboard{}, domain.ErrNotFound
	}
	return lb, nil
}

func TestLeaderboardStreamSeedsFromSharedSnapshot(t *testing.T) {
	f := newFixture(t)
	f.store.PutLeaderboardEntry(domain.LeaderboardEntry{
		Period: domain.PeriodAllTime, UserID: "u1", Username: "ada", TotalPoints: 100, Rank: 1,
	})
	f.stream.WithSnapshots(staticSnapshots{
		domain.PeriodAllTime: {
			Period: domain.PeriodAllTime,
			Entries: []domain.LeaderboardEntry{
				{Period: domain.PeriodAllTime, UserID: "u2", Username: "grace", TotalPoints: 500, Rank: 1},
				{Period: domain.PeriodAllTime, UserID: "u1", Username: "ada", TotalPoints: 100, Rank: 2},
			},
			UpdatedAt: testNow,
		},
	})
	server := httptest.NewServer(f.router)
	defer server.Close()

	conn := dialStream(t, server, "?period=all-time")
	defer conn.Close()
	msg := readSnapshot(t, conn)
	if len(msg.Payload.Entries) != 2 || msg.Payload.Entries[0].Username != "grace" || !msg.Payload.UpdatedAt.Equal(testNow) {
		t.Fatalf("expected shared snapshot, got %+v", msg.Payload)
	}

	// Periods without a shared snapshot fall back to the store.
	weekly := dialStream(t, server, "?period=weekly")
	defer weekly.Close()
	if msg := readSnapshot(t, weekly); len(msg.Payload.Entries) != 0 {
		t.Fatalf("expected empty store board, got %+v", msg.Payload)
	}
}
