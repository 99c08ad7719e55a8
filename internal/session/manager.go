// Package session coordinates document analyses: background parses of
// uploaded exports, DuckDB-backed series queries, per-request health
// computations, and full-vs-sample comparisons.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/batteryview/backend/internal/battery"
	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/parser"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// Lookup failures distinguished for API status mapping.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotReady = errors.New("session is not complete")
	ErrMetricNotFound  = errors.New("metric not found in session")
)

// Manager handles active analysis and comparison sessions.
type Manager struct {
	sessions    map[string]*analysisState
	comparisons map[string]*models.ComparisonSession
	mu          sync.RWMutex
	registry    *parser.Registry
	tempDir     string
	parsed      *PersistentParsedStore
	maxSessions int
}

// analysisState holds the session metadata, the in-memory parsed document
// used for health computations, and the DuckDB store behind chart queries.
// Doc and Store are written once when the analysis finishes and read-only
// afterwards.
type analysisState struct {
	Session      *models.AnalysisSession
	Doc          *models.ParsedDocument
	Store        *parser.SampleStore
	LastAccessed time.Time
}

// NewManager creates a session manager.
// Uses environment variable DUCKDB_TEMP_DIR for the temp directory,
// defaulting to ./data/temp, and PARSED_DB_DIR for the persistent
// parsed-sample databases.
func NewManager() *Manager {
	tempDir := os.Getenv("DUCKDB_TEMP_DIR")
	if tempDir == "" {
		tempDir = "./data/temp"
	}
	os.MkdirAll(tempDir, 0755)
	return NewManagerWithDirs(tempDir, NewPersistentParsedStore())
}

// NewManagerWithDirs creates a session manager with a specific temp
// directory and parsed-sample store.
func NewManagerWithDirs(tempDir string, parsed *PersistentParsedStore) *Manager {
	return &Manager{
		sessions:    make(map[string]*analysisState),
		comparisons: make(map[string]*models.ComparisonSession),
		registry:    parser.GetGlobalRegistry(),
		tempDir:     tempDir,
		parsed:      parsed,
		maxSessions: MaxSessions,
	}
}

// SetMaxSessions overrides the concurrent session limit. Values below one
// are ignored.
func (m *Manager) SetMaxSessions(n int) {
	if n < 1 {
		return
	}
	m.mu.Lock()
	m.maxSessions = n
	m.mu.Unlock()
}

// StartAnalysis begins the analysis of one or more export documents.
// Multiple documents are parsed individually and merged into one series
// set before aggregation.
func (m *Manager) StartAnalysis(fileIDs []string, filePaths []string, opts parser.Options) (*models.AnalysisSession, error) {
	if len(fileIDs) == 0 || len(fileIDs) != len(filePaths) {
		return nil, fmt.Errorf("mismatched fileIDs and filePaths")
	}

	// Clean up old sessions if at limit
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()

	session := models.NewAnalysisSession(sessionID, fileIDs[0])
	if len(fileIDs) > 1 {
		session.FileIDs = fileIDs
	}
	session.Status = models.SessionStatusParsing
	session.DropFirstSample = opts.DropFirstSample
	session.StartTime = time.Now().UnixMilli()

	state := &analysisState{
		Session:      session,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	// Run the analysis in a background goroutine
	go m.runAnalysis(sessionID, fileIDs, filePaths, opts)

	snapshot := *session
	return &snapshot, nil
}

func (m *Manager) runAnalysis(sessionID string, fileIDs, filePaths []string, opts parser.Options) {
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Analysis %s] PANIC recovered: %v\n", shortID(sessionID), r)
			m.updateSessionError(sessionID, fmt.Sprintf("analysis panicked: %v", r))
		}
		// Clear global intern pool after parse to free memory
		parser.ResetGlobalIntern()
	}()

	start := time.Now()
	fmt.Printf("[Analysis %s] Starting analysis of %d document(s)\n", shortID(sessionID), len(filePaths))

	// Cached fast path: a single file parsed before under the same
	// drop-first policy reads stored samples instead of re-parsing.
	if len(fileIDs) == 1 && m.parsed != nil {
		if store, err := m.parsed.Open(fileIDs[0], opts.DropFirstSample); err != nil {
			fmt.Printf("[Analysis %s] Warning: cached parse unusable, re-parsing: %v\n", shortID(sessionID), err)
		} else if store != nil {
			m.finishFromStore(sessionID, store, nil, start)
			return
		}
	}

	m.setProgress(sessionID, 10)

	docs := make([]*models.ParsedDocument, 0, len(filePaths))
	var allErrors []models.ParseError

	for i, filePath := range filePaths {
		p, err := m.registry.FindParser(filePath)
		if err != nil {
			fmt.Printf("[Analysis %s] ERROR: failed to find parser: %v\n", shortID(sessionID), err)
			m.updateSessionError(sessionID, fmt.Sprintf("failed to find parser: %v", err))
			return
		}

		// Parse progress spans 10-75, split evenly across documents.
		base := 10 + float64(i)*65/float64(len(filePaths))
		span := 65 / float64(len(filePaths))
		var lastMemLog int64
		progressCb := func(entriesDone, entriesTotal int, samplesProcessed int64) {
			var progress float64
			if entriesTotal > 0 {
				progress = base + float64(entriesDone)*span/float64(entriesTotal)
			} else {
				progress = base
			}
			m.setProgress(sessionID, progress)

			// Log memory usage every couple million samples
			if samplesProcessed-lastMemLog >= 2_000_000 {
				lastMemLog = samplesProcessed
				var memStats runtime.MemStats
				runtime.ReadMemStats(&memStats)
				fmt.Printf("[Analysis %s] Progress: %.1f%% (%d samples) - Memory: %.1f MB (alloc), Intern: %d\n",
					shortID(sessionID), progress, samplesProcessed,
					float64(memStats.Alloc)/1024/1024, parser.GetGlobalIntern().Len())
			}
		}

		doc, parseErrors, err := p.ParseWithProgress(filePath, opts, progressCb)
		if err != nil {
			fmt.Printf("[Analysis %s] ERROR: parse failed: %v\n", shortID(sessionID), err)
			m.updateSessionError(sessionID, fmt.Sprintf("parse failed: %v", err))
			return
		}

		docs = append(docs, doc)
		for _, e := range parseErrors {
			if e != nil {
				allErrors = append(allErrors, *e)
			}
		}
	}

	doc := docs[0]
	if len(docs) > 1 {
		doc = parser.MergeDocuments(docs, parser.DefaultMergeConfig())
	}

	fmt.Printf("[Analysis %s] Parse complete: %d metrics, %d samples, %d recovered errors\n",
		shortID(sessionID), len(doc.Series), doc.SampleCount, len(allErrors))

	// Feed the samples into a DuckDB store for windowed chart queries.
	// A single document lands in the persistent per-file database so the
	// next analysis of the same file skips parsing; merged analyses use a
	// session-scoped temp database.
	m.setStatus(sessionID, models.SessionStatusStoring, 80)

	var store *parser.SampleStore
	var err error
	persistent := len(fileIDs) == 1 && m.parsed != nil
	if persistent {
		store, err = m.parsed.CreateForFile(fileIDs[0], opts.DropFirstSample)
	} else {
		store, err = parser.NewSampleStore(m.tempDir, sessionID)
	}
	if err != nil {
		fmt.Printf("[Analysis %s] ERROR: failed to create sample store: %v\n", shortID(sessionID), err)
		m.updateSessionError(sessionID, fmt.Sprintf("failed to create storage: %v", err))
		return
	}

	for _, series := range doc.Series {
		store.AddSeries(series)
	}
	if err := store.Finalize(); err != nil {
		store.Close()
		fmt.Printf("[Analysis %s] ERROR: failed to finalize sample store: %v\n", shortID(sessionID), err)
		m.updateSessionError(sessionID, fmt.Sprintf("failed to store samples: %v", err))
		return
	}
	if persistent {
		m.parsed.MarkComplete(fileIDs[0], opts.DropFirstSample)
	}

	m.setProgress(sessionID, 95)
	m.completeAnalysis(sessionID, doc, store, allErrors, start)
}

// finishFromStore completes an analysis from a previously parsed sample
// database, skipping the raw JSON entirely. Recovered parse errors are not
// persisted with the samples, so a cached analysis reports none.
func (m *Manager) finishFromStore(sessionID string, store *parser.SampleStore, parseErrors []models.ParseError, start time.Time) {
	m.setProgress(sessionID, 50)

	doc, err := store.ReadDocument(context.Background())
	if err != nil {
		store.Close()
		fmt.Printf("[Analysis %s] ERROR: failed to read cached parse: %v\n", shortID(sessionID), err)
		m.updateSessionError(sessionID, fmt.Sprintf("failed to read cached parse: %v", err))
		return
	}

	fmt.Printf("[Analysis %s] Loaded cached parse: %d metrics, %d samples\n",
		shortID(sessionID), len(doc.Series), doc.SampleCount)
	m.completeAnalysis(sessionID, doc, store, parseErrors, start)
}

func (m *Manager) completeAnalysis(sessionID string, doc *models.ParsedDocument, store *parser.SampleStore, parseErrors []models.ParseError, start time.Time) {
	elapsed := time.Since(start).Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		// Session evicted while parsing; drop the work.
		store.Close()
		return
	}

	state.Doc = doc
	state.Store = store
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.SampleCount = doc.SampleCount
	state.Session.MetricCount = len(doc.Series)
	state.Session.Metrics = doc.MetricNames()
	state.Session.TimeRange = doc.TimeRange
	state.Session.ProcessingTimeMs = elapsed
	state.Session.EndTime = time.Now().UnixMilli()
	state.Session.Errors = parseErrors

	if len(doc.Series) == 0 {
		fmt.Printf("[Analysis %s] Complete, but no valid series found\n", shortID(sessionID))
		return
	}
	fmt.Printf("[Analysis %s] Complete in %dms\n", shortID(sessionID), elapsed)
}

func (m *Manager) setProgress(sessionID string, progress float64) {
	if progress > 99.9 {
		progress = 99.9
	}
	m.mu.Lock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Progress = progress
	}
	m.mu.Unlock()
}

func (m *Manager) setStatus(sessionID string, status models.SessionStatus, progress float64) {
	m.mu.Lock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Status = status
		state.Session.Progress = progress
	}
	m.mu.Unlock()
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.EndTime = time.Now().UnixMilli()
	state.Session.Errors = append(state.Session.Errors, models.ParseError{
		Reason: reason,
	})
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (*models.AnalysisSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	return &snapshot, true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// completedState returns the state for a finished session, distinguishing
// unknown sessions from ones still being parsed.
func (m *Manager) completedState(id string) (*analysisState, error) {
	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if state.Session.Status != models.SessionStatusComplete {
		return nil, ErrSessionNotReady
	}
	return state, nil
}

// MetricNames returns the sorted metric names of a completed session.
func (m *Manager) MetricNames(id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, err := m.completedState(id)
	if err != nil {
		return nil, err
	}
	return state.Doc.MetricNames(), nil
}

// MetricCount returns the stored sample count of one metric.
func (m *Manager) MetricCount(ctx context.Context, id, metric string) (int, error) {
	m.mu.RLock()
	state, err := m.completedState(id)
	if err != nil {
		m.mu.RUnlock()
		return 0, err
	}
	store := state.Store
	if state.Doc.Metric(metric) == nil {
		m.mu.RUnlock()
		return 0, ErrMetricNotFound
	}
	m.mu.RUnlock()

	count, err := store.MetricCount(ctx, metric)
	if err != nil {
		return 0, fmt.Errorf("metric count query: %w", err)
	}
	return count, nil
}

// SeriesWindow returns samples of one metric within [from, to], optionally
// bucket-downsampled to at most points samples. Zero instants default to
// the session's own time range.
func (m *Manager) SeriesWindow(ctx context.Context, id, metric string, from, to time.Time, points int) ([]models.Sample, error) {
	m.mu.RLock()
	state, err := m.completedState(id)
	if err != nil {
		m.mu.RUnlock()
		return nil, err
	}
	if state.Doc.Metric(metric) == nil {
		m.mu.RUnlock()
		return nil, ErrMetricNotFound
	}
	store := state.Store
	tr := state.Doc.TimeRange
	m.mu.RUnlock()

	if from.IsZero() && tr != nil {
		from = tr.Start
	}
	if to.IsZero() && tr != nil {
		to = tr.End
	}

	if points > 0 {
		samples, err := store.Downsample(ctx, metric, from, to, points)
		if err != nil {
			return nil, fmt.Errorf("downsample query: %w", err)
		}
		return samples, nil
	}
	samples, err := store.Window(ctx, metric, from, to)
	if err != nil {
		return nil, fmt.Errorf("window query: %w", err)
	}
	return samples, nil
}

// DailyStats returns the per-calendar-day min/max/mean rows of one metric.
func (m *Manager) DailyStats(id, metric string) ([]models.DailyStat, error) {
	m.mu.RLock()
	state, err := m.completedState(id)
	if err != nil {
		m.mu.RUnlock()
		return nil, err
	}
	series := state.Doc.Metric(metric)
	m.mu.RUnlock()

	if series == nil {
		return nil, ErrMetricNotFound
	}
	return battery.DailyStats(series), nil
}

// ComputeHealth runs the battery-health assessment over a completed
// session's document. The report is computed fresh on every call from the
// parsed series and the given parameters; nothing is cached.
func (m *Manager) ComputeHealth(id string, params battery.Params, catalog *models.MetricCatalog) (*models.HealthReport, error) {
	m.mu.RLock()
	state, err := m.completedState(id)
	if err != nil {
		m.mu.RUnlock()
		return nil, err
	}
	doc := state.Doc
	m.mu.RUnlock()

	return battery.BuildHealthReport(doc, params, catalog)
}

// DeleteParsedFile removes the persistent parsed databases of a file.
func (m *Manager) DeleteParsedFile(fileID string) error {
	if m.parsed == nil {
		return nil
	}
	return m.parsed.Delete(fileID)
}

// StartComparison begins a full-vs-sample comparison of two documents.
// Both run through the identical parse, aggregation and cycle-estimate
// chain; the result quantifies the information the sampling discarded.
func (m *Manager) StartComparison(fullFileID, sampleFileID, fullPath, samplePath string, parseOpts parser.Options, opts battery.CompareOptions) (*models.ComparisonSession, error) {
	sessionID := uuid.New().String()

	session := &models.ComparisonSession{
		ID:           sessionID,
		FullFileID:   fullFileID,
		SampleFileID: sampleFileID,
		Status:       models.SessionStatusParsing,
		StartTime:    time.Now().UnixMilli(),
	}

	m.mu.Lock()
	m.comparisons[sessionID] = session
	m.mu.Unlock()

	go m.runComparison(sessionID, []string{fullPath, samplePath}, parseOpts, opts)

	snapshot := *session
	return &snapshot, nil
}

func (m *Manager) runComparison(sessionID string, paths []string, parseOpts parser.Options, opts battery.CompareOptions) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Compare %s] PANIC recovered: %v\n", shortID(sessionID), r)
			m.updateComparisonError(sessionID, fmt.Sprintf("comparison panicked: %v", r))
		}
		parser.ResetGlobalIntern()
	}()

	fmt.Printf("[Compare %s] Comparing full vs sampled export\n", shortID(sessionID))

	docs := make([]*models.ParsedDocument, 0, 2)
	for i, path := range paths {
		p, err := m.registry.FindParser(path)
		if err != nil {
			m.updateComparisonError(sessionID, fmt.Sprintf("failed to find parser for document %d: %v", i+1, err))
			return
		}
		doc, _, err := p.Parse(path, parseOpts)
		if err != nil {
			m.updateComparisonError(sessionID, fmt.Sprintf("parse failed for document %d: %v", i+1, err))
			return
		}
		docs = append(docs, doc)

		m.mu.Lock()
		if session, ok := m.comparisons[sessionID]; ok {
			session.Progress = float64(i+1) * 45
		}
		m.mu.Unlock()
	}

	result := battery.Compare(docs[0], docs[1], opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.comparisons[sessionID]
	if !ok {
		return
	}
	session.Status = models.SessionStatusComplete
	session.Progress = 100
	session.EndTime = time.Now().UnixMilli()
	session.Result = result

	fmt.Printf("[Compare %s] Complete: remaining-cycle error %.2f\n",
		shortID(sessionID), result.Remaining.AbsoluteError)
}

func (m *Manager) updateComparisonError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.comparisons[sessionID]
	if !ok {
		return
	}
	session.Status = models.SessionStatusError
	session.EndTime = time.Now().UnixMilli()
	session.Error = reason
}

// GetComparison returns a snapshot of a comparison session by ID.
func (m *Manager) GetComparison(id string) (*models.ComparisonSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.comparisons[id]
	if !ok {
		return nil, false
	}
	snapshot := *session
	return &snapshot, true
}

// cleanupOldSessionsIfNeeded removes oldest completed sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return
	}

	var toDelete []string
	for id, state := range m.sessions {
		if state.Session.Status == models.SessionStatusComplete ||
			state.Session.Status == models.SessionStatusError {
			toDelete = append(toDelete, id)
		}
	}

	toFree := len(m.sessions) - m.maxSessions + 1
	deleted := 0
	for _, id := range toDelete {
		if deleted >= toFree {
			break
		}
		if state, ok := m.sessions[id]; ok {
			if state.Store != nil {
				state.Store.Close()
			}
			delete(m.sessions, id)
			deleted++
			fmt.Printf("[Manager] Cleaned up old session %s to free memory\n", shortID(id))
		}
	}
}

// CleanupOldSessions removes sessions older than maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		// Only clean up finished sessions
		if state.Session.Status != models.SessionStatusComplete &&
			state.Session.Status != models.SessionStatusError {
			continue
		}

		// Don't clean up sessions that are actively being used
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}

		if state.LastAccessed.Before(cutoff) {
			if state.Store != nil {
				state.Store.Close()
			}
			delete(m.sessions, id)
			fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
				shortID(id), time.Since(state.LastAccessed).Round(time.Second))
		}
	}

	for id, session := range m.comparisons {
		if session.Status != models.SessionStatusComplete &&
			session.Status != models.SessionStatusError {
			continue
		}
		if session.EndTime > 0 && time.UnixMilli(session.EndTime).Before(cutoff) {
			delete(m.comparisons, id)
			fmt.Printf("[Manager] Cleaned up aged comparison %s\n", shortID(id))
		}
	}
}
