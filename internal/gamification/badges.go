package gamification

import (
	"sort"
	"time"

	"quizstreak-service/internal/domain"
)

// CheckAndAwardBadges returns the catalog badges the user newly qualifies
// for and the points they grant. Owned badges are never re-evaluated, so a
// rerun after a partial failure converges without duplicates.
func CheckAndAwardBadges(user domain.User, catalog []domain.Badge, now time.Time) ([]domain.BadgeAward, int) {
	ordered := make([]domain.Badge, len(catalog))
	copy(ordered, catalog)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	seen := make(map[string]struct{}, len(ordered))
	var awards []domain.BadgeAward
	points := 0
	for _, badge := range ordered {
		if _, dup := seen[badge.ID]; dup {
			continue
		}
		seen[badge.ID] = struct{}{}
		if user.HasBadge(badge.ID) || !Qualifies(user, badge.Criteria) {
			continue
		}
		rarity := badge.Rarity
		if rarity == "" {
			rarity = "common"
		}
		awards = append(awards, domain.BadgeAward{
			BadgeID:    badge.ID,
			BadgeName:  badge.Name,
			Rarity:     rarity,
			UnlockedAt: now.UTC(),
		})
		points += max(0, badge.Points)
	}
	return awards, points
}

// Qualifies evaluates one criteria rule against a user snapshot. Unknown
// criteria types never qualify.
func Qualifies(user domain.User, c domain.BadgeCriteria) bool {
	switch c.Type {
	case domain.CriteriaStreak:
		return float64(user.CurrentStreak) >= c.Threshold
	case domain.CriteriaScore:
		return user.AverageScore >= c.Threshold
	case domain.CriteriaVolume:
		return float64(user.TotalQuizzesCompleted) >= c.Threshold
	default:
		return false
	}
}
