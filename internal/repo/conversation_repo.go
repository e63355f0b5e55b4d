package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/retail-assistant/internal/domain"
)

// AppendConversation persists the turns of one exchange in a single insert.
func AppendConversation(ctx context.Context, db *gorm.DB, logs []domain.ConversationLog) error {
	if len(logs) == 0 {
		return nil
	}
	now := db.NowFunc()
	for i := range logs {
		if logs[i].ID == "" {
			logs[i].ID = uuid.NewString()
		}
		if logs[i].CreatedAt.IsZero() {
			// Keep insertion order stable when rows share a timestamp.
			logs[i].CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
	}
	return db.WithContext(ctx).Create(&logs).Error
}

// ListConversation returns the last limit turns of a session, oldest first.
func ListConversation(ctx context.Context, db *gorm.DB, sessionID string, limit int) ([]domain.ConversationLog, error) {
	var out []domain.ConversationLog
	q := db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
