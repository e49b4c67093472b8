package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizstreak-service/internal/domain"
)

type badgeRow struct {
	bun.BaseModel `bun:"table:badges"`

	ID                string  `bun:"id,pk"`
	Name              string  `bun:"name,notnull"`
	Description       string  `bun:"description,notnull"`
	Rarity            string  `bun:"rarity,notnull"`
	Points            int     `bun:"points,notnull"`
	CriteriaType      string  `bun:"criteria_type,notnull"`
	CriteriaThreshold float64 `bun:"criteria_threshold,notnull"`
}

func (r badgeRow) toDomain() domain.Badge {
	return domain.Badge{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Rarity:      r.Rarity,
		Points:      r.Points,
		Criteria: domain.BadgeCriteria{
			Type:      domain.CriteriaType(r.CriteriaType),
			Threshold: r.CriteriaThreshold,
		},
	}
}

func rowFromBadge(b domain.Badge) badgeRow {
	return badgeRow{
		ID:                b.ID,
		Name:              b.Name,
		Description:       b.Description,
		Rarity:            b.Rarity,
		Points:            b.Points,
		CriteriaType:      string(b.Criteria.Type),
		CriteriaThreshold: b.Criteria.Threshold,
	}
}

// BadgeCatalog reads the badge catalog from the badges table.
type BadgeCatalog struct {
	db *bun.DB
}

func NewBadgeCatalog(db *bun.DB) *BadgeCatalog {
	return &BadgeCatalog{db: db}
}

func (c *BadgeCatalog) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	var rows []badgeRow
	if err := c.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, wrap("list badges", err)
	}
	out := make([]domain.Badge, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UpsertBadges inserts or replaces catalog entries by ID.
func (c *BadgeCatalog) UpsertBadges(ctx context.Context, badges []domain.Badge) error {
	if len(badges) == 0 {
		return nil
	}
	rows := make([]badgeRow, len(badges))
	for i, b := range badges {
		rows[i] = rowFromBadge(b)
	}
	_, err := c.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("rarity = EXCLUDED.rarity").
		Set("points = EXCLUDED.points").
		Set("criteria_type = EXCLUDED.criteria_type").
		Set("criteria_threshold = EXCLUDED.criteria_threshold").
		Exec(ctx)
	return wrap("upsert badges", err)
}

// wrap marks connection failures and retryable server states as transient.
// Other server errors (bad SQL, constraint violations) are returned as is.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return domain.Transient(op, err)
	}
	code := pgErr.Field('C')
	for _, prefix := range []string{"08", "53", "57", "40001", "40P01"} {
		if strings.HasPrefix(code, prefix) {
			return domain.Transient(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
