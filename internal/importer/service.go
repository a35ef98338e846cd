package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendaflow/crmimport/internal/crm"
)

// MaxFileSize is the maximum allowed CSV file size (10MB).
var MaxFileSize int64 = 10 * 1024 * 1024

// RunRetention is how long a completed run stays queryable before cleanup.
var RunRetention = 5 * time.Minute

// ErrNotCSV rejects files whose name does not end in .csv.
var ErrNotCSV = errors.New("only .csv files are supported")

// ErrFileTooLarge rejects files above MaxFileSize.
var ErrFileTooLarge = fmt.Errorf("file too large (limit %dMB)", MaxFileSize/(1024*1024))

// StoreFor returns the tenant-scoped CRM store for one tenant.
type StoreFor func(tenant uuid.UUID) crm.Store

// Service manages import runs: it validates preconditions synchronously,
// processes batches in the background and fans out progress to listeners.
type Service struct {
	stores StoreFor

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID       string
	FileName string
	Progress Progress
	Result   *Result
	Done     chan struct{}

	ListenerMu sync.Mutex
	Listeners  []chan Progress
}

// NewService creates a Service backed by the given tenant store provider.
func NewService(stores StoreFor) *Service {
	return &Service{
		stores: stores,
		runs:   make(map[string]*activeRun),
	}
}

// Analysis describes a freshly loaded file: its headers, the auto-suggested
// mapping and whether the import can start.
type Analysis struct {
	Headers  []string      `json:"headers"`
	Mapping  ColumnMapping `json:"mapping"`
	Missing  []FieldKey    `json:"missingRequired,omitempty"`
	Complete bool          `json:"complete"`
	RowCount int           `json:"rowCount"`
	Sample   [][]string    `json:"sample,omitempty"`
}

// Analyze parses an uploaded file and auto-maps its headers. Pure read:
// nothing is persisted and no run is created.
func Analyze(fileName string, data []byte) (*Analysis, error) {
	if err := checkFile(fileName, data); err != nil {
		return nil, err
	}

	rows, err := ParseDelimited(string(data))
	if err != nil {
		return nil, err
	}

	headers := rows[0]
	mapping := AutoMap(headers)
	missing := mapping.Missing()

	sample := rows[1:]
	if len(sample) > 5 {
		sample = sample[:5]
	}

	return &Analysis{
		Headers:  headers,
		Mapping:  mapping,
		Missing:  missing,
		Complete: len(missing) == 0,
		RowCount: len(rows) - 1,
		Sample:   sample,
	}, nil
}

// Start validates the file and mapping, then begins an asynchronous import.
// Returns the run ID immediately; use SubscribeProgress and Result to follow
// it. File-level and mapping-level problems are returned here, before any row
// is processed; they never appear in a run's error list.
func (s *Service) Start(tenant uuid.UUID, fileName string, data []byte, mapping ColumnMapping, hasHeader bool) (string, error) {
	if err := checkFile(fileName, data); err != nil {
		return "", err
	}

	rows, err := ParseDelimited(string(data))
	if err != nil {
		return "", err
	}
	if missing := mapping.Missing(); len(missing) > 0 {
		keys := make([]string, len(missing))
		for i, k := range missing {
			keys[i] = string(k)
		}
		return "", fmt.Errorf("%w: %s", ErrMappingIncomplete, strings.Join(keys, ", "))
	}

	totalRows := len(rows)
	if hasHeader {
		totalRows--
	}
	if totalRows == 0 {
		return "", ErrNoDataRows
	}

	runID := uuid.New().String()
	run := &activeRun{
		ID:       runID,
		FileName: fileName,
		Progress: Progress{
			RunID:     runID,
			FileName:  fileName,
			Phase:     PhaseStarting,
			TotalRows: totalRows,
		},
		Done: make(chan struct{}),
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	go s.process(run, rows, mapping, hasHeader, s.stores(tenant))

	return runID, nil
}

// process drives one batch to completion. The context is deliberately not
// cancellable: creates already issued for earlier rows cannot be retracted,
// so once started a batch runs through every row.
func (s *Service) process(run *activeRun, rows [][]string, mapping ColumnMapping, hasHeader bool, store crm.Store) {
	start := time.Now()
	ctx := context.Background()

	// Done closes before the listeners so that a late subscriber observing an
	// open Done channel is guaranteed to have its channel closed by
	// closeListeners rather than left dangling.
	defer func() {
		close(run.Done)
		run.closeListeners()
		s.cleanup(run.ID, RunRetention)
	}()

	fail := func(err error) {
		run.updateProgress(func(p *Progress) {
			p.Phase = PhaseFailed
			p.Error = err.Error()
		})
		run.Result = &Result{
			RunID:      run.ID,
			FileName:   run.FileName,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		slog.Error("import run failed", "run_id", run.ID, "error", err)
	}

	run.updateProgress(func(p *Progress) { p.Phase = PhaseLoading })

	snap, err := LoadSnapshot(ctx, store)
	if err != nil {
		fail(err)
		return
	}

	batch, err := NewRun(rows, mapping, hasHeader, snap, store)
	if err != nil {
		fail(err)
		return
	}

	run.updateProgress(func(p *Progress) {
		p.Phase = PhaseImporting
		p.TotalRows = batch.Total()
	})

	for {
		if _, ok := batch.Next(ctx); !ok {
			break
		}
		outcome := batch.Outcome()
		run.updateProgress(func(p *Progress) {
			p.Processed = batch.Processed()
			p.Succeeded = outcome.SuccessCount
			p.Failed = len(outcome.Errors)
		})
	}

	outcome := batch.Outcome()
	run.updateProgress(func(p *Progress) { p.Phase = PhaseComplete })

	run.Result = &Result{
		RunID:      run.ID,
		FileName:   run.FileName,
		TotalRows:  batch.Total(),
		Outcome:    *outcome,
		FailedRows: batch.FailedRows(),
		DurationMs: time.Since(start).Milliseconds(),
	}

	slog.Info("import run complete",
		"run_id", run.ID,
		"file", run.FileName,
		"rows", batch.Total(),
		"succeeded", outcome.SuccessCount,
		"failed", len(outcome.Errors),
		"duration_ms", run.Result.DurationMs,
	)
}

// SubscribeProgress returns a channel receiving progress updates.
// Closed when the run completes. Slow listeners miss intermediate updates
// rather than blocking the batch.
func (s *Service) SubscribeProgress(runID string) (<-chan Progress, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 16)

	run.ListenerMu.Lock()
	select {
	case <-run.Done:
		// Run already finished: deliver the terminal progress and close.
		run.ListenerMu.Unlock()
		ch <- run.Progress
		close(ch)
		return ch, nil
	default:
	}
	run.Listeners = append(run.Listeners, ch)
	select {
	case ch <- run.Progress:
	default:
	}
	run.ListenerMu.Unlock()

	return ch, nil
}

// ProgressOf returns the current progress without blocking.
func (s *Service) ProgressOf(runID string) (Progress, error) {
	run, err := s.get(runID)
	if err != nil {
		return Progress{}, err
	}
	run.ListenerMu.Lock()
	p := run.Progress
	run.ListenerMu.Unlock()
	return p, nil
}

// Result blocks until the run completes, then returns its terminal result.
func (s *Service) Result(runID string) (*Result, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	<-run.Done
	return run.Result, nil
}

func (s *Service) get(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("import run not found: %s", runID)
	}
	return run, nil
}

// cleanup drops the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

// updateProgress mutates the run's progress and fans the new value out to
// every listener under one lock, so readers never observe a half-applied
// update. Slow listeners miss updates rather than blocking the batch.
func (run *activeRun) updateProgress(mutate func(*Progress)) {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	mutate(&run.Progress)
	for _, ch := range run.Listeners {
		select {
		case ch <- run.Progress:
		default:
		}
	}
}

func (run *activeRun) closeListeners() {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	for _, ch := range run.Listeners {
		close(ch)
	}
	run.Listeners = nil
}

// checkFile enforces the file-level preconditions: .csv extension and size.
func checkFile(fileName string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return ErrNotCSV
	}
	if int64(len(data)) > MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}
