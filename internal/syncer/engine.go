// Package syncer keeps the device's local buckets and the remote store in
// step. Writes land locally together with a durable outbox intent; a single
// drainer goroutine pushes intents with retry and backoff.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KiritoRJ/assistenciatecnica/internal/domain"
	"github.com/KiritoRJ/assistenciatecnica/internal/session"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
)

type State string

const (
	StateIdle       State = "idle"
	StatePulling    State = "pulling"
	StateReconciled State = "reconciled"
	StatePushing    State = "pushing"
)

// Remote is the remote half of the sync protocol.
type Remote interface {
	Pull(ctx context.Context, tenantID string, bucket domain.Bucket) (*domain.BucketDocument, error)
	Push(ctx context.Context, doc domain.BucketDocument) (domain.SyncPushResponse, error)
}

type Config struct {
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	DrainInterval time.Duration
	BatchSize     int
}

func (c Config) withDefaults() Config {
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = 60 * c.BackoffMin
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = 5 * time.Second
	}
	if c.BatchSize < 1 {
		c.BatchSize = 100
	}
	return c
}

// Change is one bucket replacement handed to Write.
type Change struct {
	Bucket domain.Bucket
	Data   json.RawMessage
}

type BucketStatus struct {
	Bucket     domain.Bucket `json:"bucket"`
	State      State         `json:"state"`
	Reconciled bool          `json:"reconciled"`
	LastError  string        `json:"lastError,omitempty"`
}

type Status struct {
	TenantID string         `json:"tenantId"`
	Buckets  []BucketStatus `json:"buckets"`
	// Pending counts outbox intents not yet acknowledged by the remote store.
	Pending int `json:"pending"`
}

type bucketState struct {
	state      State
	reconciled bool
	lastErr    string
}

type Engine struct {
	sess   *session.Session
	local  store.LocalStore
	remote Remote
	cfg    Config
	now    func() time.Time

	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// mu guards buckets and serializes local read-modify-write sequences.
	mu      sync.Mutex
	buckets map[domain.Bucket]*bucketState
}

func New(sess *session.Session, local store.LocalStore, remote Remote, cfg Config) *Engine {
	e := &Engine{
		sess:    sess,
		local:   local,
		remote:  remote,
		cfg:     cfg.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		buckets: make(map[domain.Bucket]*bucketState, len(domain.Buckets)),
	}
	for _, b := range domain.Buckets {
		e.buckets[b] = &bucketState{state: StateIdle}
	}
	return e
}

func (e *Engine) Session() *session.Session {
	return e.sess
}

func (e *Engine) TenantID() string {
	return e.sess.TenantID
}

// Pull fetches the remote document for bucket without touching local state.
// An absent remote bucket returns nil.
func (e *Engine) Pull(ctx context.Context, bucket domain.Bucket) (*domain.BucketDocument, error) {
	if err := e.sess.Check(); err != nil {
		return nil, err
	}
	e.setState(bucket, StatePulling)
	doc, err := e.remote.Pull(ctx, e.TenantID(), bucket)
	if err != nil {
		e.fail(bucket, err)
		return nil, err
	}
	e.setState(bucket, StateIdle)
	return doc, nil
}

// Bootstrap reconciles every bucket once. Remote failures are logged and the
// bucket stays un-reconciled so the drainer pulls it before pushing.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if err := e.sess.Check(); err != nil {
		return err
	}
	for _, bucket := range domain.Buckets {
		err := e.reconcile(ctx, bucket, true)
		if err == nil {
			continue
		}
		if errors.Is(err, store.ErrPersistence) {
			return err
		}
		log.Warn().Err(err).Str("tenant", e.TenantID()).Str("bucket", string(bucket)).Msg("[syncer] bootstrap pull failed, using local copy")
		if bucket == domain.BucketSettings {
			if err := e.ensureOfflineSettings(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Refresh reconciles one bucket on demand.
func (e *Engine) Refresh(ctx context.Context, bucket domain.Bucket) error {
	if err := e.sess.Check(); err != nil {
		return err
	}
	return e.reconcile(ctx, bucket, true)
}

// Read returns the local document for bucket, or nil when none exists.
func (e *Engine) Read(ctx context.Context, bucket domain.Bucket) (*domain.BucketDocument, error) {
	if err := e.sess.Check(); err != nil {
		return nil, err
	}
	doc, err := e.local.LoadBucket(ctx, e.TenantID(), bucket)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return doc, nil
}

// Write replaces the given buckets locally and appends one outbox intent per
// bucket in a single local transaction. Nothing is applied when it fails.
func (e *Engine) Write(ctx context.Context, changes ...Change) error {
	if err := e.sess.Check(); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	docs := make([]domain.BucketDocument, 0, len(changes))
	intents := make([]domain.OutboxIntent, 0, len(changes))
	for _, change := range changes {
		if !json.Valid(change.Data) {
			return fmt.Errorf("%w: bucket %s data is not JSON", store.ErrInvalidInput, change.Bucket)
		}
		at, err := e.nextTimestamp(ctx, change.Bucket, now)
		if err != nil {
			return err
		}
		docs = append(docs, domain.BucketDocument{TenantID: e.TenantID(), Bucket: change.Bucket, Data: change.Data, UpdatedAt: at})
		intents = append(intents, domain.OutboxIntent{
			ID:            uuid.NewString(),
			TenantID:      e.TenantID(),
			Bucket:        change.Bucket,
			Data:          change.Data,
			UpdatedAt:     at,
			CreatedAt:     now,
			NextAttemptAt: now,
		})
	}

	if err := e.local.SaveBuckets(ctx, docs, intents); err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	e.wake()
	return nil
}

// nextTimestamp keeps local writes strictly newer than whatever the bucket
// holds, even when a remote copy carried a clock ahead of ours.
func (e *Engine) nextTimestamp(ctx context.Context, bucket domain.Bucket, now time.Time) (time.Time, error) {
	at := now.Truncate(time.Microsecond)
	current, err := e.local.LoadBucket(ctx, e.TenantID(), bucket)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return at, nil
		}
		return time.Time{}, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if !current.UpdatedAt.Before(at) {
		at = current.UpdatedAt.Add(time.Microsecond)
	}
	return at, nil
}

// Run drains the outbox until ctx is done or Close is called.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		if err := e.sess.Check(); err != nil {
			return
		}
		e.Drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
		case <-e.signal:
		}
	}
}

// Drain makes one pass over the due outbox intents and reports how many were
// acknowledged. Failures are logged and rescheduled, never returned.
func (e *Engine) Drain(ctx context.Context) int {
	if e.sess.Check() != nil {
		return 0
	}
	intents, err := e.local.PendingOutbox(ctx, e.TenantID(), e.now(), e.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("[syncer] read outbox failed")
		return 0
	}

	acked := 0
	for _, group := range groupByBucket(intents) {
		if ctx.Err() != nil {
			break
		}
		acked += e.pushGroup(ctx, group)
	}
	return acked
}

func (e *Engine) pushGroup(ctx context.Context, group []domain.OutboxIntent) int {
	latest := group[len(group)-1]
	bucket := latest.Bucket

	if !e.isReconciled(bucket) {
		// The group itself carries the local copy, so no extra intent is queued.
		if err := e.reconcile(ctx, bucket, false); err != nil {
			e.reschedule(ctx, group, err)
			return 0
		}
		// Reconcile may have replaced local with a newer remote copy.
		current, err := e.local.LoadBucket(ctx, e.TenantID(), bucket)
		if err == nil && current.UpdatedAt.After(latest.UpdatedAt) {
			e.ack(ctx, group)
			return len(group)
		}
	}

	e.setState(bucket, StatePushing)
	resp, err := e.remote.Push(ctx, domain.BucketDocument{
		TenantID:  latest.TenantID,
		Bucket:    bucket,
		Data:      latest.Data,
		UpdatedAt: latest.UpdatedAt,
	})
	if err != nil {
		e.fail(bucket, err)
		e.reschedule(ctx, group, err)
		return 0
	}

	e.ack(ctx, group)
	e.setState(bucket, StateIdle)
	if !resp.Applied {
		log.Info().Str("tenant", e.TenantID()).Str("bucket", string(bucket)).Msg("[syncer] remote holds a newer copy, pulling")
		if err := e.reconcile(ctx, bucket, true); err != nil {
			log.Warn().Err(err).Str("bucket", string(bucket)).Msg("[syncer] pull after stale push failed")
		}
	}
	return len(group)
}

func (e *Engine) ack(ctx context.Context, group []domain.OutboxIntent) {
	ids := make([]string, 0, len(group))
	for _, intent := range group {
		ids = append(ids, intent.ID)
	}
	if err := e.local.AckOutbox(ctx, ids); err != nil {
		log.Error().Err(err).Int("intents", len(ids)).Msg("[syncer] ack outbox failed")
	}
}

func (e *Engine) reschedule(ctx context.Context, group []domain.OutboxIntent, cause error) {
	now := e.now()
	for _, intent := range group {
		next := now.Add(e.backoff(intent.Attempts + 1))
		if err := e.local.MarkOutboxAttempt(ctx, intent.ID, next, cause.Error()); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("intent", intent.ID).Msg("[syncer] record attempt failed")
		}
	}
	log.Warn().Err(cause).Str("tenant", e.TenantID()).Str("bucket", string(group[0].Bucket)).Int("intents", len(group)).Msg("[syncer] push deferred")
}

// backoff doubles from BackoffMin per attempt and is capped at BackoffMax.
func (e *Engine) backoff(attempt int) time.Duration {
	delay := e.cfg.BackoffMin
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.cfg.BackoffMax {
			return e.cfg.BackoffMax
		}
	}
	return delay
}

// reconcile pulls bucket and applies last-write-wins against the local copy.
// When the local copy is newer and enqueue is set, a push intent is queued.
func (e *Engine) reconcile(ctx context.Context, bucket domain.Bucket, enqueue bool) error {
	e.setState(bucket, StatePulling)
	remoteDoc, err := e.remote.Pull(ctx, e.TenantID(), bucket)
	if err != nil {
		e.fail(bucket, err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	localDoc, err := e.local.LoadBucket(ctx, e.TenantID(), bucket)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.failLocked(bucket, err)
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if errors.Is(err, store.ErrNotFound) {
		localDoc = nil
	}

	var (
		docs    []domain.BucketDocument
		intents []domain.OutboxIntent
		now     = e.now()
	)
	switch {
	case remoteDoc != nil && (localDoc == nil || remoteDoc.UpdatedAt.After(localDoc.UpdatedAt)):
		remoteDoc.TenantID = e.TenantID()
		remoteDoc.Bucket = bucket
		docs = append(docs, *remoteDoc)
	case localDoc != nil && (remoteDoc == nil || localDoc.UpdatedAt.After(remoteDoc.UpdatedAt)):
		if enqueue {
			intents = append(intents, e.intentFor(*localDoc, now))
		}
	case localDoc == nil && remoteDoc == nil && bucket == domain.BucketSettings:
		data, err := json.Marshal(domain.DefaultSettings())
		if err != nil {
			return err
		}
		doc := domain.BucketDocument{TenantID: e.TenantID(), Bucket: bucket, Data: data, UpdatedAt: now.Truncate(time.Microsecond)}
		docs = append(docs, doc)
		intents = append(intents, e.intentFor(doc, now))
	}

	if len(docs) > 0 || len(intents) > 0 {
		if err := e.local.SaveBuckets(ctx, docs, intents); err != nil {
			e.failLocked(bucket, err)
			return fmt.Errorf("%w: %v", store.ErrPersistence, err)
		}
	}

	st := e.buckets[bucket]
	st.state = StateReconciled
	st.reconciled = true
	st.lastErr = ""
	if len(intents) > 0 {
		e.wake()
	}
	return nil
}

// ensureOfflineSettings stores default settings when the remote could not be
// reached and nothing is cached locally. The zero timestamp lets any remote
// copy win at the next reconcile.
func (e *Engine) ensureOfflineSettings(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.local.LoadBucket(ctx, e.TenantID(), domain.BucketSettings); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	data, err := json.Marshal(domain.DefaultSettings())
	if err != nil {
		return err
	}
	doc := domain.BucketDocument{TenantID: e.TenantID(), Bucket: domain.BucketSettings, Data: data}
	if err := e.local.SaveBuckets(ctx, []domain.BucketDocument{doc}, nil); err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return nil
}

func (e *Engine) intentFor(doc domain.BucketDocument, now time.Time) domain.OutboxIntent {
	return domain.OutboxIntent{
		ID:            uuid.NewString(),
		TenantID:      doc.TenantID,
		Bucket:        doc.Bucket,
		Data:          doc.Data,
		UpdatedAt:     doc.UpdatedAt,
		CreatedAt:     now,
		NextAttemptAt: now,
	}
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.local.CountOutbox(ctx, e.TenantID())
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{TenantID: e.TenantID(), Pending: pending, Buckets: make([]BucketStatus, 0, len(domain.Buckets))}
	for _, b := range domain.Buckets {
		st := e.buckets[b]
		status.Buckets = append(status.Buckets, BucketStatus{Bucket: b, State: st.state, Reconciled: st.reconciled, LastError: st.lastErr})
	}
	return status, nil
}

// Close stops Run. It does not log the session out.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Engine) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *Engine) isReconciled(bucket domain.Bucket) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buckets[bucket].reconciled
}

func (e *Engine) setState(bucket domain.Bucket, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.buckets[bucket]; ok {
		st.state = state
	}
}

func (e *Engine) fail(bucket domain.Bucket, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failLocked(bucket, err)
}

func (e *Engine) failLocked(bucket domain.Bucket, err error) {
	if st, ok := e.buckets[bucket]; ok {
		st.state = StateIdle
		st.lastErr = err.Error()
	}
}

// groupByBucket orders intents oldest first within each bucket, buckets in
// bootstrap order.
func groupByBucket(intents []domain.OutboxIntent) [][]domain.OutboxIntent {
	byBucket := make(map[domain.Bucket][]domain.OutboxIntent)
	for _, intent := range intents {
		byBucket[intent.Bucket] = append(byBucket[intent.Bucket], intent)
	}
	groups := make([][]domain.OutboxIntent, 0, len(byBucket))
	for _, b := range domain.Buckets {
		group, ok := byBucket[b]
		if !ok {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].UpdatedAt.Equal(group[j].UpdatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].UpdatedAt.Before(group[j].UpdatedAt)
		})
		groups = append(groups, group)
	}
	return groups
}
