package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SentGuard remembers which documents have already been mailed so that a
// retried or re-enqueued task does not send the customer a second copy.
// Redis-backed; a lost key only risks a duplicate email, never a lost one.
type SentGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSentGuard(client *redis.Client) *SentGuard {
	return &SentGuard{client: client, ttl: 30 * 24 * time.Hour}
}

func sentKey(documentID string) string {
	return "billing:email_sent:" + documentID
}

// AlreadySent reports whether the document was mailed before.
func (g *SentGuard) AlreadySent(ctx context.Context, documentID string) (bool, error) {
	n, err := g.client.Exists(ctx, sentKey(documentID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSent records a successful dispatch.
func (g *SentGuard) MarkSent(ctx context.Context, documentID string) error {
	return g.client.Set(ctx, sentKey(documentID), time.Now().UTC().Format(time.RFC3339), g.ttl).Err()
}
