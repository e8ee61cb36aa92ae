// Package leader elects one instance among replicas sharing a Redis server.
// Maintenance jobs that touch shared state run only on the leader.
package leader

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL           = 30 * time.Second
	DefaultRenewInterval = 10 * time.Second
)

// Options configure an Elector.
type Options struct {
	Key           string
	TTL           time.Duration
	RenewInterval time.Duration
	// OnElected and OnDemoted run on the election goroutine.
	OnElected func()
	OnDemoted func()
	Logger    *logger.Logger
}

// Elector holds or competes for a Redis lock. The lock value is the
// instance id, so only the holder can renew or release it.
type Elector struct {
	client *redis.Client
	opts   Options
	id     string
	log    *logger.Logger

	leader   atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewElector creates an elector for opts.Key. It does nothing until Start.
func NewElector(client *redis.Client, opts Options) *Elector {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RenewInterval <= 0 {
		opts.RenewInterval = DefaultRenewInterval
	}
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "instance"
	}
	return &Elector{
		client: client,
		opts:   opts,
		id:     hostname + "-" + uuid.NewString(),
		log:    log.Component("leader"),
		stop:   make(chan struct{}),
	}
}

// Start runs the election loop in the background. The first attempt happens
// immediately.
func (e *Elector) Start() {
	e.wg.Add(1)
	go e.loop()
	e.log.Info("Leader election started", "instance", e.id, "key", e.opts.Key, "ttl", e.opts.TTL)
}

// Stop ends the loop and releases the lock if held. Safe to call twice.
func (e *Elector) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.wg.Wait()

		if e.leader.Swap(false) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			e.release(ctx)
		}
		e.log.Info("Leader election stopped", "instance", e.id)
	})
}

// IsLeader reports whether this instance holds the lock.
func (e *Elector) IsLeader() bool {
	return e.leader.Load()
}

// InstanceID is the value written to the lock.
func (e *Elector) InstanceID() string {
	return e.id
}

func (e *Elector) loop() {
	defer e.wg.Done()
	e.tick()

	ticker := time.NewTicker(e.opts.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Elector) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.leader.Load() {
		if !e.renew(ctx) {
			e.log.Warn("Lost leadership", "instance", e.id)
			e.leader.Store(false)
			if e.opts.OnDemoted != nil {
				e.opts.OnDemoted()
			}
		}
		return
	}
	if e.acquire(ctx) {
		e.log.Info("Acquired leadership", "instance", e.id)
		e.leader.Store(true)
		if e.opts.OnElected != nil {
			e.opts.OnElected()
		}
	}
}

func (e *Elector) acquire(ctx context.Context) bool {
	ok, err := e.client.SetNX(ctx, e.opts.Key, e.id, e.opts.TTL).Result()
	if err != nil {
		e.log.Error(err, "Acquiring leader lock failed")
		return false
	}
	return ok
}

var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (e *Elector) renew(ctx context.Context) bool {
	n, err := renewScript.Run(ctx, e.client, []string{e.opts.Key}, e.id, e.opts.TTL.Milliseconds()).Int()
	if err != nil {
		e.log.Error(err, "Renewing leader lock failed")
		return false
	}
	return n == 1
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

func (e *Elector) release(ctx context.Context) {
	n, err := releaseScript.Run(ctx, e.client, []string{e.opts.Key}, e.id).Int()
	switch {
	case err != nil:
		e.log.Error(err, "Releasing leader lock failed")
	case n == 1:
		e.log.Info("Released leader lock", "instance", e.id)
	default:
		e.log.Debug("Leader lock was held elsewhere", "instance", e.id)
	}
}
