package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rouleplus/autoecole-core/internal/model"
	"github.com/rouleplus/autoecole-core/internal/repository/base"
)

type OutboxRepository interface {
	Insert(ctx context.Context, event model.Event) error
	ListUnpublished(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}

type PgxOutboxRepository struct {
	db base.Querier
}

func NewPgxOutboxRepository(db base.Querier) *PgxOutboxRepository {
	return &PgxOutboxRepository{db: db}
}

// Insert записывает доменное событие в outbox.
// Вызывается внутри той же транзакции, что и основная мутация.
func (r *PgxOutboxRepository) Insert(ctx context.Context, event model.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	query := `
		INSERT INTO outbox_events (id, event_type, payload, published)
		VALUES ($1, $2, $3, false)
	`

	if _, err := r.db.Exec(ctx, query, uuid.New(), event.Type, payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// ListUnpublished получает неотправленные события, старые первыми
func (r *PgxOutboxRepository) ListUnpublished(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, created_at, published
		FROM outbox_events
		WHERE published = false
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	defer rows.Close()

	var events []*model.OutboxEvent
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.Payload, &e.CreatedAt, &e.Published); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}

// MarkPublished помечает событие доставленным
func (r *PgxOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET published = true, published_at = now() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}

	return nil
}
