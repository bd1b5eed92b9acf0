package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// GuestCartTTL is the inactivity window after which a guest cart expires.
// Refreshed on every mutation; authenticated carts do not expire.
const GuestCartTTL = 7 * 24 * time.Hour

// Store persists carts in Redis, one JSON document per owner key. Carts
// are single-owner and short-lived, so last-write-wins SETs are enough.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client (used by tests).
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func ownerKey(o Owner) (string, error) {
	if !o.Valid() {
		return "", ErrInvalidOwner
	}
	if o.Guest() {
		return "cart:session:" + o.SessionID, nil
	}
	return "cart:user:" + o.UserID, nil
}

// Find returns the owner's cart, or (nil, nil) when none exists; callers
// create lazily on first add.
func (s *Store) Find(ctx context.Context, o Owner) (*Cart, error) {
	key, err := ownerKey(o)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &c, nil
}

// FindByUser returns the authenticated user's cart, or nil.
func (s *Store) FindByUser(ctx context.Context, userID string) (*Cart, error) {
	return s.Find(ctx, Owner{UserID: userID})
}

// FindBySession returns the guest cart for a session token, or nil.
func (s *Store) FindBySession(ctx context.Context, sessionID string) (*Cart, error) {
	return s.Find(ctx, Owner{SessionID: sessionID})
}

// Save writes the cart. Guest carts carry a TTL refreshed on each save.
func (s *Store) Save(ctx context.Context, o Owner, c *Cart) error {
	key, err := ownerKey(o)
	if err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	var ttl time.Duration
	if o.Guest() {
		ttl = GuestCartTTL
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set cart: %w", err)
	}
	return nil
}

// Delete removes the owner's cart. Deleting an absent cart is not an error.
func (s *Store) Delete(ctx context.Context, o Owner) error {
	key, err := ownerKey(o)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del cart: %w", err)
	}
	return nil
}
