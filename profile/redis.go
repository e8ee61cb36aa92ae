package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisStore keeps documents as JSON under users:<uid> and publishes every
// write on users:<uid>:changes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func docKey(uid string) string {
	return "users:" + uid
}

func changesChannel(uid string) string {
	return docKey(uid) + ":changes"
}

// Get reads a document.
func (s *RedisStore) Get(ctx context.Context, uid string) (*Profile, error) {
	raw, err := s.client.Get(ctx, docKey(uid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}
	return &p, nil
}

// Upsert merges u into the stored document, creating it when absent.
func (s *RedisStore) Upsert(ctx context.Context, uid string, u Update) error {
	key := docKey(uid)
	var written []byte

	txf := func(tx *redis.Tx) error {
		p := &Profile{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, p); err != nil {
				return fmt.Errorf("decode user document: %w", err)
			}
		}

		u.Apply(p)
		written, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("json marshal error: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, written, 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("upsert user document: %w", err)
	}

	if err := s.client.Publish(ctx, changesChannel(uid), written).Err(); err != nil {
		return fmt.Errorf("publish user document: %w", err)
	}
	return nil
}

// Subscribe delivers the current document and every later write. fn runs on
// a single goroutine and must not call Close on the returned subscription.
func (s *RedisStore) Subscribe(ctx context.Context, uid string, fn func(*Profile, error)) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, changesChannel(uid))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to user document: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	ch := pubsub.Channel()

	go func() {
		defer close(sub.done)

		p, err := s.Get(subCtx, uid)
		if errors.Is(err, ErrNotFound) {
			p, err = nil, nil
		}
		if subCtx.Err() != nil {
			return
		}
		fn(p, err)

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var next Profile
				if err := json.Unmarshal([]byte(msg.Payload), &next); err != nil {
					fn(nil, fmt.Errorf("decode user document: %w", err))
					continue
				}
				fn(&next, nil)
			}
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Close stops delivery and waits for the delivery goroutine to exit.
func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}
