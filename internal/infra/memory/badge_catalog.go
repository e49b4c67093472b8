package memory

import (
	"context"
	"sync"
	"time"

	"quizstreak-service/internal/domain"
)

const catalogKey = "badges"

// BadgeLoader reads the full badge catalog from its source of truth.
type BadgeLoader interface {
	ListBadges(ctx context.Context) ([]domain.Badge, error)
}

// CachedBadgeCatalog serves the catalog from memory, reloading after ttl.
type CachedBadgeCatalog struct {
	loader BadgeLoader
	cache  *ttlCache[[]domain.Badge]
}

func NewCachedBadgeCatalog(loader BadgeLoader, ttl time.Duration) *CachedBadgeCatalog {
	return &CachedBadgeCatalog{loader: loader, cache: newTTLCache[[]domain.Badge](ttl)}
}

func (c *CachedBadgeCatalog) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	badges, err := c.cache.get(ctx, catalogKey, c.loader.ListBadges)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Badge, len(badges))
	copy(out, badges)
	return out, nil
}

// Invalidate drops the cached catalog so the next read reloads it.
func (c *CachedBadgeCatalog) Invalidate() {
	c.cache.invalidate(catalogKey)
}

// StaticBadgeCatalog is a mutable in-memory catalog.
type StaticBadgeCatalog struct {
	mu     sync.RWMutex
	badges []domain.Badge
}

func NewStaticBadgeCatalog(badges ...domain.Badge) *StaticBadgeCatalog {
	return &StaticBadgeCatalog{badges: badges}
}

func (c *StaticBadgeCatalog) ListBadges(_ context.Context) ([]domain.Badge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Badge, len(c.badges))
	copy(out, c.badges)
	return out, nil
}

// Put adds or replaces a badge by ID.
func (c *StaticBadgeCatalog) Put(b domain.Badge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.badges {
		if c.badges[i].ID == b.ID {
			c.badges[i] = b
			return
		}
	}
	c.badges = append(c.badges, b)
}

// DefaultBadges is the starter catalog seeded by migrate and used in dev mode.
func DefaultBadges() []domain.Badge {
	return []domain.Badge{
		{ID: "first-quiz", Name: "First Steps", Description: "Complete your first quiz", Rarity: "common", Points: 10,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaVolume, Threshold: 1}},
		{ID: "quiz-10", Name: "Quiz Enthusiast", Description: "Complete 10 quizzes", Rarity: "uncommon", Points: 25,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaVolume, Threshold: 10}},
		{ID: "quiz-50", Name: "Quiz Master", Description: "Complete 50 quizzes", Rarity: "rare", Points: 100,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaVolume, Threshold: 50}},
		{ID: "streak-3", Name: "On Fire", Description: "Reach a 3-day streak", Rarity: "common", Points: 15,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaStreak, Threshold: 3}},
		{ID: "streak-7", Name: "Week Warrior", Description: "Reach a 7-day streak", Rarity: "rare", Points: 50,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaStreak, Threshold: 7}},
		{ID: "streak-30", Name: "Unstoppable", Description: "Reach a 30-day streak", Rarity: "legendary", Points: 200,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaStreak, Threshold: 30}},
		{ID: "score-90", Name: "Sharp Mind", Description: "Keep an average score of 90 or more", Rarity: "epic", Points: 75,
			Criteria: domain.BadgeCriteria{Type: domain.CriteriaScore, Threshold: 90}},
	}
}
