package parser

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/batteryview/backend/internal/models"
)

// SampleStore keeps parsed samples in a DuckDB file so that windowed and
// downsampled chart queries do not have to walk the in-memory series, and
// so a previously parsed file can be reopened without re-parsing.
type SampleStore struct {
	db            *sql.DB
	dbPath        string
	removeOnClose bool
	sampleCount   int
	batchSize     int
	batch         []storedSample
	metrics       map[string]struct{}
	minTs         int64
	maxTs         int64
	lastError     error // stores the last flush error

	// Cache for per-metric counts to avoid repeated COUNT queries
	countCache   map[string]int
	countCacheMu sync.RWMutex

	// Semaphore to limit concurrent queries (prevents memory spikes
	// during rapid chart panning)
	querySem chan struct{}
}

type storedSample struct {
	metric string
	tsMs   int64
	value  float64
}

// NewSampleStore creates a DuckDB-backed store in the given temp directory.
// The database file is removed on Close.
func NewSampleStore(tempDir string, sessionID string) (*SampleStore, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("session_%s.duckdb", sessionID))
	ss, err := NewSampleStoreAtPath(dbPath)
	if err != nil {
		return nil, err
	}
	ss.removeOnClose = true
	return ss, nil
}

// NewSampleStoreAtPath creates a store at a specific path. The file
// survives Close; used for the persistent parsed-file cache.
func NewSampleStoreAtPath(dbPath string) (*SampleStore, error) {
	fmt.Printf("[SampleStore] Creating database at: %s\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='1GB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE samples (
			id     INTEGER PRIMARY KEY,
			ts     BIGINT NOT NULL,
			metric VARCHAR NOT NULL,
			value  DOUBLE NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Indexes are created in Finalize() after all inserts; creating them
	// up front slows the insert phase considerably.
	return &SampleStore{
		db:         db,
		dbPath:     dbPath,
		batchSize:  50000, // 50K samples per batch keeps the Appender efficient
		batch:      make([]storedSample, 0, 50000),
		metrics:    make(map[string]struct{}, 16),
		countCache: make(map[string]int),
		querySem:   make(chan struct{}, 3), // Max 3 concurrent queries
	}, nil
}

// OpenSampleStoreReadOnly opens an existing store for querying.
// Used for loading previously parsed files from persistent storage.
func OpenSampleStoreReadOnly(dbPath string) (*SampleStore, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='1GB'",
			"PRAGMA threads=4",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[SampleStore] Pragma warning: %v\n", err)
				// Non-fatal for read-only use
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	var sampleCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&sampleCount); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get sample count: %w", err)
	}

	var minTs, maxTs int64
	if err := db.QueryRow("SELECT MIN(ts), MAX(ts) FROM samples").Scan(&minTs, &maxTs); err != nil {
		// May be an empty table
		minTs, maxTs = 0, 0
	}

	metrics := make(map[string]struct{})
	rows, err := db.Query("SELECT DISTINCT metric FROM samples")
	if err == nil {
		for rows.Next() {
			var metric string
			if err := rows.Scan(&metric); err == nil {
				metrics[metric] = struct{}{}
			}
		}
		rows.Close()
	}

	fmt.Printf("[SampleStore] Opened existing DB: %d samples, %d metrics\n",
		sampleCount, len(metrics))

	return &SampleStore{
		db:          db,
		dbPath:      dbPath,
		sampleCount: sampleCount,
		batchSize:   50000,
		batch:       make([]storedSample, 0),
		metrics:     metrics,
		minTs:       minTs,
		maxTs:       maxTs,
		countCache:  make(map[string]int),
		querySem:    make(chan struct{}, 3),
	}, nil
}

// Add buffers a sample for insertion. Samples are batched for efficiency.
func (ss *SampleStore) Add(metric string, sample models.Sample) {
	tsMs := sample.Timestamp.UnixMilli()
	ss.batch = append(ss.batch, storedSample{metric: metric, tsMs: tsMs, value: sample.Value})
	ss.metrics[metric] = struct{}{}

	if ss.sampleCount == 0 || tsMs < ss.minTs {
		ss.minTs = tsMs
	}
	if tsMs > ss.maxTs {
		ss.maxTs = tsMs
	}

	ss.sampleCount++

	if len(ss.batch) >= ss.batchSize {
		if err := ss.flushBatch(); err != nil {
			ss.lastError = err
			fmt.Printf("[SampleStore] flush error: %v\n", err)
		}
	}
}

// AddSeries buffers every sample of a series.
func (ss *SampleStore) AddSeries(series *models.Series) {
	for _, sample := range series.Samples {
		ss.Add(series.Metric, sample)
	}
}

// LastError returns the last error that occurred during batch flush.
func (ss *SampleStore) LastError() error {
	return ss.lastError
}

// flushBatch writes the current batch using the native Appender API.
func (ss *SampleStore) flushBatch() error {
	if len(ss.batch) == 0 {
		return nil
	}

	conn, err := ss.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "samples")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseID := ss.sampleCount - len(ss.batch)
		for i, s := range ss.batch {
			if err := appender.AppendRow(int32(baseID+i), s.tsMs, s.metric, s.value); err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}

		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	ss.batch = ss.batch[:0]
	return nil
}

// Finalize flushes remaining samples and creates query indexes.
func (ss *SampleStore) Finalize() error {
	if err := ss.flushBatch(); err != nil {
		return err
	}

	fmt.Printf("[SampleStore] Finalizing: creating indexes for %d samples...\n", ss.sampleCount)
	start := time.Now()

	if _, err := ss.db.Exec("CREATE INDEX idx_ts ON samples(ts)"); err != nil {
		return fmt.Errorf("idx_ts creation failed: %w", err)
	}

	if ss.sampleCount > 100000 {
		if _, err := ss.db.Exec("CREATE INDEX idx_metric_ts ON samples(metric, ts)"); err != nil {
			fmt.Printf("[SampleStore] Warning: idx_metric_ts creation failed: %v\n", err)
		}
	}

	fmt.Printf("[SampleStore] Finalization complete in %v\n", time.Since(start))
	return nil
}

// Len returns the total number of stored samples.
func (ss *SampleStore) Len() int {
	return ss.sampleCount
}

// Metrics returns the set of stored metric names.
func (ss *SampleStore) Metrics() map[string]struct{} {
	return ss.metrics
}

// GetTimeRange returns the time range of stored samples.
func (ss *SampleStore) GetTimeRange() *models.TimeRange {
	if ss.sampleCount == 0 {
		return nil
	}
	return &models.TimeRange{
		Start: time.UnixMilli(ss.minTs).UTC(),
		End:   time.UnixMilli(ss.maxTs).UTC(),
	}
}

// MetricCount returns the number of samples stored for one metric.
// Counts are cached; the store is append-frozen after Finalize.
func (ss *SampleStore) MetricCount(ctx context.Context, metric string) (int, error) {
	ss.countCacheMu.RLock()
	count, found := ss.countCache[metric]
	ss.countCacheMu.RUnlock()
	if found {
		return count, nil
	}

	err := ss.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples WHERE metric = ?", metric).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}

	ss.countCacheMu.Lock()
	ss.countCache[metric] = count
	ss.countCacheMu.Unlock()
	return count, nil
}

// windowQueryLimit caps a single window query to avoid OOM on huge ranges.
const windowQueryLimit = 500000

// Window returns samples of one metric with from <= ts <= to, ascending.
func (ss *SampleStore) Window(ctx context.Context, metric string, from, to time.Time) ([]models.Sample, error) {
	select {
	case ss.querySem <- struct{}{}:
		defer func() { <-ss.querySem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rows, err := ss.db.QueryContext(ctx, `
		SELECT ts, value FROM samples
		WHERE metric = ? AND ts >= ? AND ts <= ?
		ORDER BY ts LIMIT ?
	`, metric, from.UnixMilli(), to.UnixMilli(), windowQueryLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}
	if len(samples) == windowQueryLimit {
		fmt.Printf("[SampleStore] Warning: window query truncated at %d samples for metric %s\n",
			windowQueryLimit, metric)
	}
	return samples, nil
}

// Downsample returns at most points bucket-averaged samples of one metric
// within the window. Each bucket is represented by its earliest timestamp
// and the mean value, which is what the chart consumers draw.
func (ss *SampleStore) Downsample(ctx context.Context, metric string, from, to time.Time, points int) ([]models.Sample, error) {
	if points <= 0 {
		return ss.Window(ctx, metric, from, to)
	}

	select {
	case ss.querySem <- struct{}{}:
		defer func() { <-ss.querySem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	fromMs := from.UnixMilli()
	toMs := to.UnixMilli()
	bucketMs := (toMs - fromMs) / int64(points)
	if bucketMs < 1 {
		bucketMs = 1
	}

	rows, err := ss.db.QueryContext(ctx, `
		SELECT MIN(ts) AS ts, AVG(value) AS value
		FROM samples
		WHERE metric = ? AND ts >= ? AND ts <= ?
		GROUP BY CAST((ts - ?) / ? AS BIGINT)
		ORDER BY ts
	`, metric, fromMs, toMs, fromMs, bucketMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSamples(rows)
}

// ReadDocument rebuilds the full parsed document from the store, for
// re-analysis of a file without re-parsing the raw export.
func (ss *SampleStore) ReadDocument(ctx context.Context) (*models.ParsedDocument, error) {
	rows, err := ss.db.QueryContext(ctx, "SELECT metric, ts, value FROM samples ORDER BY metric, ts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doc := models.NewParsedDocument()
	intern := GetGlobalIntern()
	for rows.Next() {
		var metric string
		var tsMs int64
		var value float64
		if err := rows.Scan(&metric, &tsMs, &value); err != nil {
			return nil, err
		}
		metric = intern.Intern(metric)
		series := doc.Series[metric]
		if series == nil {
			series = models.NewSeries(metric)
			doc.Series[metric] = series
		}
		ts := time.UnixMilli(tsMs).UTC()
		series.Samples = append(series.Samples, models.Sample{Timestamp: ts, Value: value})
		doc.Observe(ts)
		doc.SampleCount++
	}
	return doc, rows.Err()
}

func scanSamples(rows *sql.Rows) ([]models.Sample, error) {
	samples := make([]models.Sample, 0, 1024)
	for rows.Next() {
		var tsMs int64
		var value float64
		if err := rows.Scan(&tsMs, &value); err != nil {
			return nil, err
		}
		samples = append(samples, models.Sample{
			Timestamp: time.UnixMilli(tsMs).UTC(),
			Value:     value,
		})
	}
	return samples, rows.Err()
}

// Close closes the database. Temp-directory stores also remove their file.
func (ss *SampleStore) Close() error {
	if ss.db != nil {
		ss.db.Close()
	}
	if ss.removeOnClose && ss.dbPath != "" {
		os.Remove(ss.dbPath)
	}
	return nil
}

// Delete closes the store and removes the database file regardless of how
// the store was opened.
func (ss *SampleStore) Delete() error {
	if ss.db != nil {
		ss.db.Close()
	}
	if ss.dbPath != "" {
		if err := os.Remove(ss.dbPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
