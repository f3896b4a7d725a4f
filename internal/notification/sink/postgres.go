package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"bloodlink/internal/notification"
	txcontext "bloodlink/pkg/platform/tx"
)

// Postgres writes a batch into the notifications table in one transaction.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Deliver(ctx context.Context, messages []notification.Message) error {
	return txcontext.Run(ctx, p.db, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, p.db)
		for _, m := range messages {
			_, err := exec.ExecContext(ctx, `
				INSERT INTO notifications (id, recipient_id, request_id, title, message, category, priority, action_ref, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO NOTHING`,
				uuid.UUID(m.ID), uuid.UUID(m.RecipientID), uuid.UUID(m.RequestID),
				m.Title, m.Message, string(m.Category), string(m.Priority), m.ActionRef, m.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
		}
		return nil
	})
}
