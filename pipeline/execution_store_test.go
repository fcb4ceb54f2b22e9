package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

type mockTimeProvider struct {
    currentTime time.Time
    mutex       sync.Mutex
}

func (mtp *mockTimeProvider) Now() time.Time {
    mtp.mutex.Lock()
    defer mtp.mutex.Unlock()
    return mtp.currentTime
}

func (mtp *mockTimeProvider) Add(d time.Duration) {
    mtp.mutex.Lock()
    mtp.currentTime = mtp.currentTime.Add(d)
    mtp.mutex.Unlock()
}

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConcurrentOperations(t *testing.T) {
    mtp := &mockTimeProvider{currentTime: time.Now()}
    store := NewExecutionStore(mtp, testLogger())

    threshold := 5 * time.Minute
    cleanupInterval := 10 * time.Millisecond

    store.StartCleanup(threshold, cleanupInterval)
    defer store.Stop()

    var wg sync.WaitGroup
    for i := 0; i < 500; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            addRandomExecution(store, mtp.Now())
        }()
    }

    for i := 0; i < 10; i++ {
        mtp.Add(cleanupInterval)
        time.Sleep(5 * time.Millisecond)

        for j := 0; j < 50; j++ {
            wg.Add(1)
            go func() {
                defer wg.Done()
                addRandomExecution(store, mtp.Now())
            }()
        }
    }

    wg.Wait()

    mtp.Add(threshold + time.Second)
    store.performCleanup(threshold)

    store.mu.RLock()
    defer store.mu.RUnlock()
    for _, exec := range store.executions {
        if mtp.Now().Sub(exec.CompletedAt) > threshold {
            t.Errorf("Found expired execution that should have been cleaned up: %v", exec.RunID)
        }
    }
}

func addRandomExecution(store *ExecutionStore, now time.Time) {
    id := fmt.Sprintf("run_%d", rand.Int())
    store.Add(&Execution{
        RunID:       id,
        Status:      StatusCompleted,
        CompletedAt: now.Add(-time.Duration(rand.Intn(600)) * time.Second),
    })
}

func TestExecutionLifecycle(t *testing.T) {
    mtp := &mockTimeProvider{currentTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
    store := NewExecutionStore(mtp, testLogger())
    req := pipeline_type.RunRequest{Document: "policy.pdf", Questions: []string{"q1"}}

    store.Start("run-1", req, pipeline_type.ModeClaim)
    exec, ok := store.Get("run-1")
    if !ok || exec.Status != StatusStarted || !exec.CompletedAt.IsZero() {
        t.Fatalf("started execution = %+v", exec)
    }

    mtp.Add(time.Minute)
    store.Complete("run-1", &pipeline_type.RunResult{RunID: "run-1"})
    exec, _ = store.Get("run-1")
    if exec.Status != StatusCompleted || exec.Result == nil || exec.CompletedAt.Sub(exec.SubmittedAt) != time.Minute {
        t.Errorf("completed execution = %+v", exec)
    }

    store.Start("run-2", req, pipeline_type.ModeAnswer)
    store.Fail("run-2", errors.New("document unreachable"))
    exec, _ = store.Get("run-2")
    if exec.Status != StatusFailed || exec.ErrorMessage != "document unreachable" {
        t.Errorf("failed execution = %+v", exec)
    }

    // running executions are never expired
    store.Start("run-3", req, pipeline_type.ModeClaim)
    mtp.Add(48 * time.Hour)
    store.performCleanup(time.Hour)
    if _, ok := store.Get("run-3"); !ok {
        t.Error("an unfinished execution was cleaned up")
    }
    if store.Len() != 1 {
        t.Errorf("Len() = %d, want 1", store.Len())
    }

    if _, ok := store.Get("unknown"); ok {
        t.Error("unknown run found")
    }
    store.Stop()
    store.Stop()
}
