package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

type ExecutionStatus string

const (
    StatusStarted   ExecutionStatus = "started"
    StatusCompleted ExecutionStatus = "completed"
    StatusFailed    ExecutionStatus = "failed"
)

// Execution is the audit record of one run.
type Execution struct {
    RunID        string                   `json:"run_id"`
    Status       ExecutionStatus          `json:"status"`
    Document     string                   `json:"document"`
    Mode         pipeline_type.Mode       `json:"mode"`
    Questions    []string                 `json:"questions"`
    Result       *pipeline_type.RunResult `json:"result,omitempty"`
    ErrorMessage string                   `json:"error_message,omitempty"`
    SubmittedAt  time.Time                `json:"submitted_at"`
    CompletedAt  time.Time                `json:"completed_at,omitempty"`
}

// ExecutionStore keeps recent runs in memory. Finished runs older than the
// cleanup threshold are dropped.
type ExecutionStore struct {
    mu           sync.RWMutex
    executions   map[string]*Execution
    timeProvider TimeProvider
    logger       *slog.Logger
    stopCleanup  chan struct{}
    stopOnce     sync.Once
}

func NewExecutionStore(timeProvider TimeProvider, logger *slog.Logger) *ExecutionStore {
    if timeProvider == nil {
        timeProvider = RealTimeProvider{}
    }
    return &ExecutionStore{
        executions:   make(map[string]*Execution),
        timeProvider: timeProvider,
        logger:       logger,
        stopCleanup:  make(chan struct{}),
    }
}

// StartCleanup removes expired executions every cleanupInterval until Stop is called.
func (s *ExecutionStore) StartCleanup(threshold, cleanupInterval time.Duration) {
    ticker := time.NewTicker(cleanupInterval)

    go func() {
        defer ticker.Stop()
        for {
            select {
            case <-ticker.C:
                s.performCleanup(threshold)
            case <-s.stopCleanup:
                return
            }
        }
    }()
}

func (s *ExecutionStore) Stop() {
    s.stopOnce.Do(func() { close(s.stopCleanup) })
}

func (s *ExecutionStore) performCleanup(threshold time.Duration) {
    now := s.timeProvider.Now()
    s.mu.Lock()
    defer s.mu.Unlock()

    for runID, exec := range s.executions {
        if !exec.CompletedAt.IsZero() && now.Sub(exec.CompletedAt) > threshold {
            delete(s.executions, runID)
            s.logger.Debug("Deleted execution due to expiration", slog.String("run_id", runID))
        }
    }
}

// Start records a new run as started.
func (s *ExecutionStore) Start(runID string, req pipeline_type.RunRequest, mode pipeline_type.Mode) {
    s.Add(&Execution{
        RunID:       runID,
        Status:      StatusStarted,
        Document:    req.Document,
        Mode:        mode,
        Questions:   req.Questions,
        SubmittedAt: s.timeProvider.Now(),
    })
}

func (s *ExecutionStore) Complete(runID string, result *pipeline_type.RunResult) {
    s.finish(runID, func(exec *Execution) {
        exec.Status = StatusCompleted
        exec.Result = result
    })
}

func (s *ExecutionStore) Fail(runID string, err error) {
    s.finish(runID, func(exec *Execution) {
        exec.Status = StatusFailed
        exec.ErrorMessage = err.Error()
    })
}

func (s *ExecutionStore) finish(runID string, update func(*Execution)) {
    s.mu.Lock()
    defer s.mu.Unlock()
    exec, ok := s.executions[runID]
    if !ok {
        return
    }
    update(exec)
    exec.CompletedAt = s.timeProvider.Now()
}

func (s *ExecutionStore) Add(exec *Execution) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.executions[exec.RunID] = exec
}

// Get returns a copy of the execution.
func (s *ExecutionStore) Get(runID string) (Execution, bool) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    exec, ok := s.executions[runID]
    if !ok {
        return Execution{}, false
    }
    return *exec, true
}

func (s *ExecutionStore) Len() int {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return len(s.executions)
}
