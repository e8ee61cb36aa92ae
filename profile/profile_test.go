package profile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gilby125/flight-connections/identity"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/go-test/deep"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func strPtr(s string) *string { return &s }

func TestProfile_JSON(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p := Profile{Email: "a@example.com", DisplayName: "Ada Lovelace", LinkedProvider: "google.com"}
	Update{CreatedAt: &created}.Apply(&p)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"email": "a@example.com",
		"displayName": "Ada Lovelace",
		"isAnonymous": false,
		"linkedProvider": "google.com",
		"createdAt": "2025-03-01T10:00:00Z"
	}`, string(raw))

	var back Profile
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.CreatedAt.AsTime().Equal(created))
	assert.Nil(t, back.LastActiveAt)
}

func TestUpdateFromUser(t *testing.T) {
	u := UpdateFromUser(identity.User{UID: "u1", Email: "a@example.com", DisplayName: "Ada King Lovelace", Provider: "google.com"})

	p := Profile{PhotoURL: "https://example.com/keep.png"}
	u.Apply(&p)
	if diff := deep.Equal(p, Profile{
		Email:          "a@example.com",
		DisplayName:    "Ada King Lovelace",
		FirstName:      "Ada",
		LastName:       "King Lovelace",
		PhotoURL:       "https://example.com/keep.png",
		LinkedProvider: "google.com",
	}); diff != nil {
		t.Error(diff)
	}
}

func TestClone_IsDeep(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Profile{}
	Update{LastActiveAt: &ts}.Apply(p)

	cp := p.Clone()
	cp.LastActiveAt.Seconds = 0
	assert.Equal(t, ts.Unix(), p.LastActiveAt.Seconds)
	assert.Nil(t, (*Profile)(nil).Clone())
}

func TestRedisStore_GetMissing(t *testing.T) {
	s, _ := newRedisStore(t)
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_UpsertMerges(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "u1", Update{Email: strPtr("a@example.com"), PhotoURL: strPtr("p.png")}))
	require.NoError(t, s.Upsert(ctx, "u1", Update{DisplayName: strPtr("Ada")}))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", p.Email)
	assert.Equal(t, "p.png", p.PhotoURL)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.True(t, mr.Exists("users:u1"))
}

type recorder struct {
	ch chan *Profile
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *Profile, 16)}
}

func (r *recorder) fn(p *Profile, err error) {
	if err == nil {
		r.ch <- p
	}
}

func (r *recorder) next(t *testing.T) *Profile {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for profile")
		return nil
	}
}

func TestRedisStore_Subscribe(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	rec := newRecorder()

	sub, err := s.Subscribe(ctx, "u1", rec.fn)
	require.NoError(t, err)
	defer sub.Close()

	assert.Nil(t, rec.next(t), "missing document is delivered as nil first")

	require.NoError(t, s.Upsert(ctx, "u1", Update{Email: strPtr("a@example.com")}))
	p := rec.next(t)
	require.NotNil(t, p)
	assert.Equal(t, "a@example.com", p.Email)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestRedisStore_SubscribeDeliversSnapshotFirst(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "u1", Update{DisplayName: strPtr("Ada")}))

	rec := newRecorder()
	sub, err := s.Subscribe(ctx, "u1", rec.fn)
	require.NoError(t, err)
	defer sub.Close()

	p := rec.next(t)
	require.NotNil(t, p)
	assert.Equal(t, "Ada", p.DisplayName)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, uid string) (*Profile, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}

func (m *MockStore) Upsert(ctx context.Context, uid string, u Update) error {
	return m.Called(ctx, uid, u).Error(0)
}

func (m *MockStore) Subscribe(ctx context.Context, uid string, fn func(*Profile, error)) (Subscription, error) {
	args := m.Called(ctx, uid, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Subscription), args.Error(1)
}

func stubClock(t *testing.T) (time.Time, *[]time.Duration) {
	t.Helper()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration
	prevNow, prevSleep := now, sleep
	now = func() time.Time { return fixed }
	sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	t.Cleanup(func() { now, sleep = prevNow, prevSleep })
	return fixed, &slept
}

func TestEnsureUserDocument_CreatesWithTimestamps(t *testing.T) {
	fixed, slept := stubClock(t)
	s, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, EnsureUserDocument(ctx, s, "u1", UpdateFromUser(identity.User{UID: "u1", Email: "a@example.com"})))
	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.CreatedAt.AsTime().Equal(fixed))
	assert.True(t, p.LastActiveAt.AsTime().Equal(fixed))
	assert.Empty(t, *slept)

	later := fixed.Add(time.Hour)
	now = func() time.Time { return later }
	require.NoError(t, EnsureUserDocument(ctx, s, "u1", Update{}))
	p, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.CreatedAt.AsTime().Equal(fixed), "createdAt is kept")
	assert.True(t, p.LastActiveAt.AsTime().Equal(later))
	assert.Equal(t, "a@example.com", p.Email)
}

func TestEnsureUserDocument_RetriesWithBackoff(t *testing.T) {
	_, slept := stubClock(t)
	store := new(MockStore)
	store.On("Get", mock.Anything, "u1").Return(nil, ErrNotFound)
	store.On("Upsert", mock.Anything, "u1", mock.Anything).Return(errors.New("unavailable")).Twice()
	store.On("Upsert", mock.Anything, "u1", mock.Anything).Return(nil).Once()

	require.NoError(t, EnsureUserDocument(context.Background(), store, "u1", Update{}))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *slept)
	store.AssertNumberOfCalls(t, "Upsert", 3)
}

func TestEnsureUserDocument_GivesUp(t *testing.T) {
	_, slept := stubClock(t)
	store := new(MockStore)
	store.On("Get", mock.Anything, "u1").Return(nil, errors.New("connection refused"))

	err := EnsureUserDocument(context.Background(), store, "u1", Update{})
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.ErrorContains(t, err, "connection refused")
	assert.Len(t, *slept, 2)
	store.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestTouchActivity(t *testing.T) {
	fixed, _ := stubClock(t)
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, TouchActivity(ctx, s, "ghost"))
	assert.False(t, mr.Exists("users:ghost"))

	require.NoError(t, s.Upsert(ctx, "u1", Update{Email: strPtr("a@example.com")}))
	require.NoError(t, TouchActivity(ctx, s, "u1"))
	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.LastActiveAt.AsTime().Equal(fixed))
}

func TestSyncer_FollowsIdentity(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "u1", Update{DisplayName: strPtr("Ada")}))
	require.NoError(t, s.Upsert(ctx, "u2", Update{DisplayName: strPtr("Grace")}))

	session := identity.NewSession(nil, logger.Discard())
	syncer := NewSyncer(s, logger.Discard())
	defer syncer.Close()
	stop := syncer.Attach(ctx, session)
	defer stop()

	assert.Nil(t, syncer.Profile())

	session.SetUser(&identity.User{UID: "u1"})
	assert.Eventually(t, func() bool {
		p := syncer.Profile()
		return p != nil && p.DisplayName == "Ada"
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, syncer.Loading())

	session.SetUser(&identity.User{UID: "u2"})
	assert.Eventually(t, func() bool {
		p := syncer.Profile()
		return p != nil && p.DisplayName == "Grace"
	}, 2*time.Second, 10*time.Millisecond)

	// Writes to the previous user no longer reach the syncer.
	require.NoError(t, s.Upsert(ctx, "u1", Update{DisplayName: strPtr("Ada B")}))
	require.NoError(t, s.Upsert(ctx, "u2", Update{DisplayName: strPtr("Grace H")}))
	assert.Eventually(t, func() bool {
		return syncer.Profile().DisplayName == "Grace H"
	}, 2*time.Second, 10*time.Millisecond)

	session.SetUser(&identity.User{UID: "anon", IsAnonymous: true})
	assert.Nil(t, syncer.Profile())
	assert.False(t, syncer.Loading())
}

type fakeSubscription struct {
	closed int
}

func (f *fakeSubscription) Close() error {
	f.closed++
	return nil
}

func TestSyncer_OneSubscriptionAtATime(t *testing.T) {
	store := new(MockStore)
	first, second := &fakeSubscription{}, &fakeSubscription{}
	store.On("Subscribe", mock.Anything, "u1", mock.Anything).Return(first, nil).Once()
	store.On("Subscribe", mock.Anything, "u2", mock.Anything).Run(func(mock.Arguments) {
		assert.Equal(t, 1, first.closed, "previous subscription is torn down first")
	}).Return(second, nil).Once()

	syncer := NewSyncer(store, logger.Discard())
	ctx := context.Background()
	syncer.Follow(ctx, &identity.User{UID: "u1"})
	assert.True(t, syncer.Loading())
	syncer.Follow(ctx, &identity.User{UID: "u2"})

	require.NoError(t, syncer.Close())
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.closed)

	syncer.Follow(ctx, &identity.User{UID: "u3"})
	store.AssertExpectations(t)
}

func TestSyncer_SubscribeFailure(t *testing.T) {
	store := new(MockStore)
	store.On("Subscribe", mock.Anything, "u1", mock.Anything).Return(nil, errors.New("down"))

	syncer := NewSyncer(store, logger.Discard())
	syncer.Follow(context.Background(), &identity.User{UID: "u1"})
	assert.False(t, syncer.Loading())
	assert.Nil(t, syncer.Profile())
}
