package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/JeremyIV/summary-pyramid/internal/pyramid"
	"github.com/JeremyIV/summary-pyramid/internal/rollup"
)

// JobStatus represents the state of a query job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusSegmenting JobStatus = "segmenting"
	StatusReducing   JobStatus = "reducing"
	StatusAnswering  JobStatus = "answering"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Strategy selects how a document is reduced before answering.
type Strategy string

const (
	StrategyPyramid Strategy = "pyramid"
	StrategyRollup  Strategy = "rollup"
)

// ParseStrategy validates a strategy name. Empty input selects the pyramid.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", string(StrategyPyramid):
		return StrategyPyramid, nil
	case string(StrategyRollup):
		return StrategyRollup, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (valid: pyramid, rollup)", s)
	}
}

// Job tracks the state of a single document query.
type Job struct {
	mu sync.Mutex

	ID string `json:"job_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Query    string    `json:"query"`
	Strategy Strategy  `json:"strategy"`

	// TokensPerChunk overrides the worker's chunk budget when positive.
	// Set once at submission, never mutated.
	TokensPerChunk int `json:"tokens_per_chunk,omitempty"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	result   *Result
	errors   []string
}

// Progress tracks reduction progress. Level and LevelSizes stay zero for
// rollup jobs, where StepsDone counts fold stages instead of windows.
type Progress struct {
	TotalChunks int      `json:"total_chunks"`
	Level       int      `json:"level"`
	StepsDone   int      `json:"steps_done"`
	TotalSteps  int      `json:"total_steps"`
	LevelSizes  []int    `json:"level_sizes"`
	Errors      []string `json:"errors"`
}

// Result is the outcome of a completed job. Exactly one of Pyramid and
// Rollup is set, matching the job's strategy.
type Result struct {
	Answer  string
	Pyramid *pyramid.Pyramid
	Rollup  *rollup.Result
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotalChunks records total chunk count.
func (j *Job) SetTotalChunks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	j.UpdatedAt = time.Now()
}

// SetReduceProgress records one completed reduction step. When the step
// finishes a pyramid level, the level's summary count is recorded too.
func (j *Job) SetReduceProgress(level, done, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Level = level
	j.Progress.StepsDone = done
	j.Progress.TotalSteps = total
	if level > 0 && done == total {
		for len(j.Progress.LevelSizes) < level {
			j.Progress.LevelSizes = append(j.Progress.LevelSizes, 0)
		}
		j.Progress.LevelSizes[level-1] = total
	}
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// SetResult stores the finished reduction and releases the file bytes,
// which are no longer needed.
func (j *Job) SetResult(res *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// Result returns the finished reduction, or nil while the job is running.
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Query    string    `json:"query"`
	Strategy Strategy  `json:"strategy"`
	Progress Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	sizes := j.Progress.LevelSizes
	if sizes == nil {
		sizes = []int{}
	}
	return JobSnapshot{
		ID:       j.ID,
		Status:   j.Status,
		Phase:    j.Phase,
		Filename: j.Filename,
		Query:    j.Query,
		Strategy: j.Strategy,
		Progress: Progress{
			TotalChunks: j.Progress.TotalChunks,
			Level:       j.Progress.Level,
			StepsDone:   j.Progress.StepsDone,
			TotalSteps:  j.Progress.TotalSteps,
			LevelSizes:  sizes,
			Errors:      errs,
		},
	}
}
