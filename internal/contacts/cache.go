// Package contacts caches the last beneficiary a user purchased for, per
// transaction type. Best-effort: a cache failure is logged and never affects
// a settlement decision.
package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vtupay/wallet-engine/internal/models"
)

const keyTTL = 90 * 24 * time.Hour

// Cache stores recently-used contacts in Redis, keyed per user with one hash
// field per transaction type.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func contactKey(userID uuid.UUID) string {
	return fmt.Sprintf("contacts:%s", userID)
}

// Upsert records the beneficiary for the user's latest successful purchase.
func (c *Cache) Upsert(ctx context.Context, userID uuid.UUID, kind models.TransactionType, recipient string) error {
	contact := models.Contact{
		UserID:    userID,
		Type:      kind,
		Recipient: recipient,
		UpdatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}

	key := contactKey(userID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, string(kind), payload)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store contact: %w", err)
	}
	return nil
}

// Recent returns the last beneficiary for the given type, or nil when none
// has been cached.
func (c *Cache) Recent(ctx context.Context, userID uuid.UUID, kind models.TransactionType) (*models.Contact, error) {
	payload, err := c.rdb.HGet(ctx, contactKey(userID), string(kind)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}

	var contact models.Contact
	if err := json.Unmarshal(payload, &contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact: %w", err)
	}
	return &contact, nil
}
