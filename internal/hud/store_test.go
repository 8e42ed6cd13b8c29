package hud

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/formpulse/livecoach/domain/entities"
)

type recordedAlert struct {
	alert *entities.FormAlert
}

type mockAlertRepo struct {
	mu      sync.Mutex
	alerts  []*entities.FormAlert
	arrived chan recordedAlert
	fail    error
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{arrived: make(chan recordedAlert, 16)}
}

func (m *mockAlertRepo) RecordAlert(ctx context.Context, alert *entities.FormAlert) error {
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()
	m.arrived <- recordedAlert{alert}
	return m.fail
}

func (m *mockAlertRepo) GetBySessionID(ctx context.Context, sessionID string) ([]*entities.FormAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts, nil
}

func (m *mockAlertRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

func newTestStore(repo *mockAlertRepo) *Store {
	if repo == nil {
		return NewStore("sess-1", "dev-1", nil, nil, zap.NewNop())
	}
	return NewStore("sess-1", "dev-1", repo, nil, zap.NewNop())
}

func TestUpsertLastWriteWins(t *testing.T) {
	store := newTestStore(nil)

	store.Upsert(entities.BodyPartSpine, entities.FormStatusOptimal, "stacked")
	store.Upsert(entities.BodyPartKnees, entities.FormStatusWarning, "deep range")
	store.Upsert(entities.BodyPartSpine, entities.FormStatusCritical, "kyphosis")

	snap := store.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 annotations, got %d", len(snap))
	}

	spine, ok := snap[entities.BodyPartSpine]
	if !ok {
		t.Fatal("spine annotation missing")
	}
	if spine.Status != entities.FormStatusCritical || spine.Feedback != "kyphosis" {
		t.Errorf("spine annotation did not reflect most recent upsert: %+v", spine)
	}
}

func TestSweepBoundary(t *testing.T) {
	store := newTestStore(nil)
	base := time.Now()
	store.now = func() time.Time { return base }

	store.Upsert(entities.BodyPartSpine, entities.FormStatusOptimal, "ok")
	store.Upsert(entities.BodyPartCore, entities.FormStatusOptimal, "braced")

	// Exactly at the window: retained.
	if n := store.Sweep(base.Add(StaleAfter)); n != 0 {
		t.Errorf("annotations at exactly the staleness window must be retained, removed %d", n)
	}
	if len(store.Snapshot()) != 2 {
		t.Error("annotations removed prematurely")
	}

	// One tick past the window: removed.
	if n := store.Sweep(base.Add(StaleAfter + time.Millisecond)); n != 2 {
		t.Errorf("expected 2 removals past the window, got %d", n)
	}
	if len(store.Snapshot()) != 0 {
		t.Error("stale annotations not removed")
	}
}

func TestSweepKeepsRefreshedEntries(t *testing.T) {
	store := newTestStore(nil)
	base := time.Now()
	now := base
	store.now = func() time.Time { return now }

	store.Upsert(entities.BodyPartSpine, entities.FormStatusOptimal, "ok")
	now = base.Add(5 * time.Second)
	store.Upsert(entities.BodyPartKnees, entities.FormStatusOptimal, "ok")

	if n := store.Sweep(base.Add(8 * time.Second)); n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}
	snap := store.Snapshot()
	if _, ok := snap[entities.BodyPartKnees]; !ok {
		t.Error("refreshed annotation should survive the sweep")
	}
	if _, ok := snap[entities.BodyPartSpine]; ok {
		t.Error("stale annotation should have been swept")
	}
}

func TestUpsertPersistsNonOptimalOnly(t *testing.T) {
	repo := newMockAlertRepo()
	store := newTestStore(repo)

	store.Upsert(entities.BodyPartSpine, entities.FormStatusOptimal, "stacked")
	store.Upsert(entities.BodyPartKnees, entities.FormStatusCritical, "valgus")

	select {
	case rec := <-repo.arrived:
		if rec.alert.Part != entities.BodyPartKnees || rec.alert.Status != entities.FormStatusCritical {
			t.Errorf("persisted wrong alert: %+v", rec.alert)
		}
		if rec.alert.Feedback != "valgus" {
			t.Errorf("persisted wrong feedback: %q", rec.alert.Feedback)
		}
		if rec.alert.SessionID != "sess-1" {
			t.Errorf("persisted wrong session id: %q", rec.alert.SessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("persistence side-effect never fired")
	}

	// Give a stray optimal write a chance to land before asserting.
	time.Sleep(50 * time.Millisecond)
	if got := repo.count(); got != 1 {
		t.Errorf("expected exactly 1 persisted alert, got %d", got)
	}
}

func TestPersistenceFailureDoesNotAffectStore(t *testing.T) {
	repo := newMockAlertRepo()
	repo.fail = context.DeadlineExceeded
	store := newTestStore(repo)

	store.Upsert(entities.BodyPartShoulders, entities.FormStatusWarning, "elevated")

	<-repo.arrived
	snap := store.Snapshot()
	if _, ok := snap[entities.BodyPartShoulders]; !ok {
		t.Error("store state must be unaffected by persistence failure")
	}
}

func TestClearRemovesEverything(t *testing.T) {
	store := newTestStore(nil)
	store.Upsert(entities.BodyPartHead, entities.FormStatusWarning, "forward tilt")
	store.Clear()
	if len(store.Snapshot()) != 0 {
		t.Error("Clear left annotations behind")
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var mu sync.Mutex
	var calls []map[entities.BodyPart]entities.Annotation
	store := NewStore("sess-1", "dev-1", nil, func(snap map[entities.BodyPart]entities.Annotation) {
		mu.Lock()
		calls = append(calls, snap)
		mu.Unlock()
	}, zap.NewNop())

	store.Upsert(entities.BodyPartCore, entities.FormStatusOptimal, "braced")
	store.Clear()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("expected 2 change notifications, got %d", len(calls))
	}
	if len(calls[0]) != 1 || len(calls[1]) != 0 {
		t.Errorf("notifications carried wrong snapshots: %d then %d entries", len(calls[0]), len(calls[1]))
	}
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	store := newTestStore(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
