// SPDX-License-Identifier: AGPL-3.0-or-later
package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/cooldown"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/queue"
)

type fakeQueue struct {
	mu       sync.Mutex
	deleted  []string
	hidden   map[string]time.Duration
	requeued map[string]time.Duration
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{hidden: map[string]time.Duration{}, requeued: map[string]time.Duration{}}
}

func (f *fakeQueue) Receive(ctx context.Context, maxMessages int) ([]queue.Envelope, error) {
	return nil, nil
}

func (f *fakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, receiptHandle)
	return nil
}

// DelayRequeue records the republished body keyed by itself, modeling that
// this publishes a genuinely new message rather than touching the original
// receipt handle's visibility.
func (f *fakeQueue) DelayRequeue(ctx context.Context, body string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued[body] = delay
	return nil
}

func (f *fakeQueue) Hide(ctx context.Context, receiptHandle string, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[receiptHandle] = duration
	return nil
}

func (f *fakeQueue) ScheduleFuture(ctx context.Context, body string, at time.Time) error {
	return f.DelayRequeue(ctx, body, time.Until(at))
}

var _ queue.Adapter = (*fakeQueue)(nil)

type fakeStore struct {
	mu      sync.Mutex
	blocked map[string]bool
	cool    map[string]bool
	bucket  map[string][]cooldown.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocked: map[string]bool{}, cool: map[string]bool{}, bucket: map[string][]cooldown.Entry{}}
}

func (s *fakeStore) MarkBlocked(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[addr] = true
	return nil
}
func (s *fakeStore) IsBlocked(ctx context.Context, addr string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[addr], nil
}
func (s *fakeStore) ClearBlocked(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, addr)
	return nil
}
func (s *fakeStore) MarkCooldown(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cool[addr] = true
	return nil
}
func (s *fakeStore) IsInCooldown(ctx context.Context, addr string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cool[addr], nil
}
func (s *fakeStore) AddToBucket(ctx context.Context, replyFrom string, entry cooldown.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.DedupKey()
	for _, e := range s.bucket[replyFrom] {
		if e.DedupKey() == key {
			return false, nil
		}
	}
	s.bucket[replyFrom] = append(s.bucket[replyFrom], entry)
	return true, nil
}
func (s *fakeStore) ReadBucket(ctx context.Context) (map[string][]cooldown.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucket, nil
}
func (s *fakeStore) RemoveSenders(ctx context.Context, senders []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sender := range senders {
		delete(s.bucket, sender)
	}
	return nil
}

var _ cooldown.Store = (*fakeStore)(nil)

type fakeIssues struct {
	mu       sync.Mutex
	reported []models.Issue
}

func (f *fakeIssues) Report(ctx context.Context, issue models.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, issue)
}

var _ IssueReporter = (*fakeIssues)(nil)

func validReq(replyFrom, to string) string {
	req := models.WarmupRequest{
		To:              to,
		OriginalSubject: "hello",
		Body:            "body",
		WarmupID:        "w1",
		ReplyFrom:       replyFrom,
		CustomMailID:    "tag-1",
	}
	b, _ := json.Marshal(req)
	return string(b)
}

func newTestLoop(store *fakeStore, q *fakeQueue, issues *fakeIssues) *Loop {
	return &Loop{store: store, queue: q, issues: issues}
}

func TestProcessEnvelope_MalformedJSONIsDeletedAndReported(t *testing.T) {
	q := newFakeQueue()
	issues := &fakeIssues{}
	l := newTestLoop(newFakeStore(), q, issues)

	outcome := l.processEnvelope(context.Background(), queue.Envelope{Body: "not json", ReceiptHandle: "h1"})

	assert.Equal(t, outcomeDeleted, outcome)
	assert.Contains(t, q.deleted, "h1")
	assert.Len(t, issues.reported, 1)
}

func TestProcessEnvelope_InvalidSchemaIsDeletedAndReported(t *testing.T) {
	q := newFakeQueue()
	issues := &fakeIssues{}
	l := newTestLoop(newFakeStore(), q, issues)

	body, err := json.Marshal(models.WarmupRequest{To: "to@b.com"})
	require.NoError(t, err)

	outcome := l.processEnvelope(context.Background(), queue.Envelope{Body: string(body), ReceiptHandle: "h1"})

	assert.Equal(t, outcomeDeleted, outcome)
	assert.Contains(t, q.deleted, "h1")
	assert.Len(t, issues.reported, 1)
}

func TestProcessEnvelope_AdmitsIntoBucketAndDeletes(t *testing.T) {
	store := newFakeStore()
	q := newFakeQueue()
	l := newTestLoop(store, q, &fakeIssues{})

	env := queue.Envelope{Body: validReq("sender@a.com", "to@b.com"), ReceiptHandle: "h1", ApproximateReceiveCount: 1}
	outcome := l.processEnvelope(context.Background(), env)

	assert.Equal(t, outcomeAdmitted, outcome)
	assert.Contains(t, q.deleted, "h1")
	assert.Len(t, store.bucket["sender@a.com"], 1)
}

func TestProcessEnvelope_DuplicateInBucketIsSkipped(t *testing.T) {
	store := newFakeStore()
	q := newFakeQueue()
	l := newTestLoop(store, q, &fakeIssues{})

	env1 := queue.Envelope{Body: validReq("sender@a.com", "to@b.com"), ReceiptHandle: "h1"}
	env2 := queue.Envelope{Body: validReq("sender@a.com", "to@b.com"), ReceiptHandle: "h2"}

	require.Equal(t, outcomeAdmitted, l.processEnvelope(context.Background(), env1))
	outcome := l.processEnvelope(context.Background(), env2)

	assert.Equal(t, outcomeSkipped, outcome)
	assert.NotContains(t, q.deleted, "h2")
	assert.Len(t, store.bucket["sender@a.com"], 1)
}

func TestProcessEnvelope_BlockedSenderIsDeleted(t *testing.T) {
	store := newFakeStore()
	store.blocked["sender@a.com"] = true
	q := newFakeQueue()
	l := newTestLoop(store, q, &fakeIssues{})

	env := queue.Envelope{Body: validReq("sender@a.com", "to@b.com"), ReceiptHandle: "h1"}
	outcome := l.processEnvelope(context.Background(), env)

	assert.Equal(t, outcomeDeleted, outcome)
	assert.Contains(t, q.deleted, "h1")
	assert.Empty(t, store.bucket)
}

func TestProcessEnvelope_CooldownHidesUnderThreshold(t *testing.T) {
	store := newFakeStore()
	store.cool["sender@a.com"] = true
	q := newFakeQueue()
	l := newTestLoop(store, q, &fakeIssues{})

	env := queue.Envelope{Body: validReq("sender@a.com", "to@b.com"), ReceiptHandle: "h1", ApproximateReceiveCount: 1}
	outcome := l.processEnvelope(context.Background(), env)

	assert.Equal(t, outcomeHidden, outcome)
	assert.Equal(t, hideOnCooldown, q.hidden["h1"])
	assert.Empty(t, q.deleted)
}

func TestProcessEnvelope_CooldownDeletesAtThreshold(t *testing.T) {
	store := newFakeStore()
	store.cool["sender@a.com"] = true
	q := newFakeQueue()
	l := newTestLoop(store, q, &fakeIssues{})

	env := queue.Envelope{Body: validReq("sender@a.com", "to@b.com"), ReceiptHandle: "h1", ApproximateReceiveCount: 2}
	outcome := l.processEnvelope(context.Background(), env)

	assert.Equal(t, outcomeDeleted, outcome)
	assert.Contains(t, q.deleted, "h1")
}

func TestProcessEnvelope_ScheduledFutureRequeues(t *testing.T) {
	store := newFakeStore()
	q := newFakeQueue()
	l := newTestLoop(store, q, &fakeIssues{})

	future := time.Now().Add(1 * time.Hour).UnixMilli()
	req := models.WarmupRequest{
		To: "to@b.com", OriginalSubject: "s", Body: "b", WarmupID: "w1",
		ReplyFrom: "sender@a.com", CustomMailID: "tag-1", ScheduledFor: &future,
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	env := queue.Envelope{Body: string(body), ReceiptHandle: "h1"}
	outcome := l.processEnvelope(context.Background(), env)

	assert.Equal(t, outcomeRequeued, outcome)
	assert.Contains(t, q.deleted, "h1")
	requeuedDelay, ok := q.requeued[string(body)]
	require.True(t, ok, "original body should be republished as a new message")
	assert.LessOrEqual(t, requeuedDelay, 900*time.Second)
}

func TestProcessEnvelope_ScheduledFutureCapsDelayAt900s(t *testing.T) {
	store := newFakeStore()
	q := newFakeQueue()
	l := newTestLoop(store, q, &fakeIssues{})

	future := time.Now().Add(5 * time.Hour).UnixMilli()
	req := models.WarmupRequest{
		To: "to@b.com", OriginalSubject: "s", Body: "b", WarmupID: "w1",
		ReplyFrom: "sender@a.com", CustomMailID: "tag-1", ScheduledFor: &future,
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	env := queue.Envelope{Body: string(body), ReceiptHandle: "h1"}
	l.processEnvelope(context.Background(), env)

	assert.Contains(t, q.deleted, "h1")
	assert.Equal(t, queue.MaxDelaySeconds*time.Second, q.requeued[string(body)])
}
