package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
	"chargeshare-backend/internal/repository"
)

const notificationColumns = `id, user_id, kind, title, message, is_read, attributes, created_at`

type notificationRepository struct {
	db DBTX
}

func NewNotificationRepository(db DBTX) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func scanNotification(row scanner) (*domain.Notification, error) {
	var (
		n     domain.Notification
		attrs []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.IsRead, &attrs, &n.CreatedAt); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
			return nil, fmt.Errorf("notification %d attributes: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		return fmt.Errorf("marshal notification attributes: %w", err)
	}

	n.CreatedAt = time.Now()
	logger.DatabaseCall("INSERT", "notifications", "userID", n.UserID, "kind", n.Kind)
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, kind, title, message, is_read, attributes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		n.UserID, n.Kind, n.Title, n.Message, n.IsRead, attrs, n.CreatedAt).Scan(&n.ID)
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)
	return mapError(err)
}

// List pages userID's notifications newest first. unreadOnly narrows both
// the page and the total.
func (r *notificationRepository) List(ctx context.Context, userID int64, unreadOnly bool, page, pageSize int32) ([]domain.Notification, int32, error) {
	offset := (page - 1) * pageSize
	sql := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		sql += " AND NOT is_read"
	}

	var count int32
	countSql := "SELECT count(*) FROM (" + sql + ") as sub"
	if err := r.db.QueryRowContext(ctx, countSql, userID).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	sql += " ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3"
	rows, err := r.db.QueryContext(ctx, sql, userID, pageSize, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notes = append(notes, *n)
	}
	return notes, count, rows.Err()
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NewNotFoundError("notification %d not found", id)
	}
	return nil
}
