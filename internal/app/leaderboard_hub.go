package app

import (
	"sync"

	"quizstreak-service/internal/domain"
)

// LeaderboardHub fans ranked snapshots out to in-process subscribers, one
// topic per period. It keeps the latest snapshot so new subscribers start
// from it.
type LeaderboardHub struct {
	mu          sync.RWMutex
	latest      map[domain.LeaderboardPeriod]domain.Leaderboard
	subscribers map[domain.LeaderboardPeriod]map[chan domain.Leaderboard]struct{}
}

func NewLeaderboardHub() *LeaderboardHub {
	return &LeaderboardHub{
		latest:      make(map[domain.LeaderboardPeriod]domain.Leaderboard),
		subscribers: make(map[domain.LeaderboardPeriod]map[chan domain.Leaderboard]struct{}),
	}
}

// Publish stores lb as the latest snapshot and broadcasts it.
func (h *LeaderboardHub) Publish(lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[lb.Period] = lb
	for ch := range h.subscribers[lb.Period] {
		select {
		case ch <- lb:
		default:
			// Slow subscriber: drop its stale snapshot, keep the newest.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}

// Subscribe returns a channel of snapshots for period. The caller must invoke
// the returned cancel function to avoid leaks.
func (h *LeaderboardHub) Subscribe(period domain.LeaderboardPeriod) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	if h.subscribers[period] == nil {
		h.subscribers[period] = make(map[chan domain.Leaderboard]struct{})
	}
	h.subscribers[period][ch] = struct{}{}
	if initial, ok := h.latest[period]; ok {
		ch <- initial
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[period][ch]; ok {
			delete(h.subscribers[period], ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Latest returns the last snapshot published for period.
func (h *LeaderboardHub) Latest(period domain.LeaderboardPeriod) (domain.Leaderboard, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	lb, ok := h.latest[period]
	return lb, ok
}

// SubscriberCount reports how many subscribers a period has.
func (h *LeaderboardHub) SubscriberCount(period domain.LeaderboardPeriod) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[period])
}
