package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const defaultRotationGroup = "default"

// RotationStore advances the persisted round-robin cursor inside a single
// transaction so concurrent processes hand out distinct indexes. On
// Postgres the cursor row is locked with FOR UPDATE; SQLite serializes
// writers on its own.
type RotationStore struct {
	db *bun.DB
}

func NewRotationStore(db *bun.DB) (*RotationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RotationStore{db: db}, nil
}

func (s *RotationStore) NextIndex(ctx context.Context, groupID string, liveCount int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: rotation store is not configured")
	}
	if liveCount < 1 {
		return 0, fmt.Errorf("sqlstore: rotation requires at least one live account")
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		groupID = defaultRotationGroup
	}

	var next int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &rotationCursorRecord{}
		q := tx.NewSelect().
			Model(record).
			Where("?TableAlias.group_id = ?", groupID).
			Limit(1)
		if s.db.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}

		now := time.Now().UTC()
		err := q.Scan(ctx)
		if err != nil {
			if err != sql.ErrNoRows {
				return err
			}
			record = &rotationCursorRecord{
				ID:           uuid.NewString(),
				GroupID:      groupID,
				CurrentIndex: 0,
				AccountCount: liveCount,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			next = 0
			return nil
		}

		if record.AccountCount != liveCount {
			// Membership changed since the cursor was written; restart the
			// cycle so every live account gets an equal share again.
			record.CurrentIndex = 0
			record.AccountCount = liveCount
		} else {
			record.CurrentIndex = (record.CurrentIndex + 1) % liveCount
		}
		record.UpdatedAt = now

		if _, updateErr := tx.NewUpdate().
			Model(record).
			Column("current_index", "account_count", "updated_at").
			Where("?TableAlias.id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		next = record.CurrentIndex
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
