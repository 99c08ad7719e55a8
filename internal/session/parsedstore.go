package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/batteryview/backend/internal/parser"
)

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// PersistentParsedStore manages persistent DuckDB files of parsed samples.
// Re-analyzing a previously uploaded export reads the stored rows instead
// of re-parsing the raw JSON. Databases are keyed by file ID plus the
// drop-first-sample policy, since the two policies yield different rows.
// Only derived samples live here; health results are computed per request
// and never persisted.
type PersistentParsedStore struct {
	parsedDir string
	mu        sync.RWMutex
	// cache tracks parsed databases (cache key -> dbPath)
	cache map[string]string
}

// NewPersistentParsedStore creates a new persistent parsed store.
// Uses environment variable PARSED_DB_DIR for storage location, defaults to ./data/parsed
func NewPersistentParsedStore() *PersistentParsedStore {
	parsedDir := os.Getenv("PARSED_DB_DIR")
	if parsedDir == "" {
		parsedDir = "./data/parsed"
	}
	return NewPersistentParsedStoreWithDir(parsedDir)
}

// NewPersistentParsedStoreWithDir creates a persistent parsed store with a specific directory.
func NewPersistentParsedStoreWithDir(parsedDir string) *PersistentParsedStore {
	os.MkdirAll(parsedDir, 0755)

	store := &PersistentParsedStore{
		parsedDir: parsedDir,
		cache:     make(map[string]string),
	}

	// Scan existing parsed databases on startup
	store.scanExisting()

	return store
}

// dropFirstSuffix marks databases parsed with the drop-first-sample policy.
const dropFirstSuffix = "_dropfirst"

func cacheKey(fileID string, dropFirst bool) string {
	if dropFirst {
		return fileID + dropFirstSuffix
	}
	return fileID
}

// scanExisting scans the parsed directory for existing databases on startup.
func (pps *PersistentParsedStore) scanExisting() {
	entries, err := os.ReadDir(pps.parsedDir)
	if err != nil {
		fmt.Printf("[ParsedStore] Warning: failed to scan parsed directory: %v\n", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Files match the pattern file_<id>[_dropfirst].duckdb
		name := entry.Name()
		if len(name) > 12 && strings.HasPrefix(name, "file_") && filepath.Ext(name) == ".duckdb" {
			key := name[5 : len(name)-7]
			pps.cache[key] = filepath.Join(pps.parsedDir, name)
			fmt.Printf("[ParsedStore] Found existing parsed DB for file %s\n", shortID(key))
		}
	}

	fmt.Printf("[ParsedStore] Scanned %d existing parsed databases\n", len(pps.cache))
}

// GetDBPath returns the path where a parsed DB would be stored for a file
// ID under a given drop-first policy.
func (pps *PersistentParsedStore) GetDBPath(fileID string, dropFirst bool) string {
	return filepath.Join(pps.parsedDir, fmt.Sprintf("file_%s.duckdb", cacheKey(fileID, dropFirst)))
}

// IsParsed checks if a file has already been parsed under the given policy.
func (pps *PersistentParsedStore) IsParsed(fileID string, dropFirst bool) bool {
	key := cacheKey(fileID, dropFirst)

	pps.mu.RLock()
	_, ok := pps.cache[key]
	pps.mu.RUnlock()

	if ok {
		return true
	}

	// Double-check by looking for the file (in case it was created externally)
	dbPath := pps.GetDBPath(fileID, dropFirst)
	if _, err := os.Stat(dbPath); err == nil {
		pps.mu.Lock()
		pps.cache[key] = dbPath
		pps.mu.Unlock()
		return true
	}

	return false
}

// Open opens an existing parsed DuckDB for a file.
// Returns nil if the file hasn't been parsed under this policy yet.
func (pps *PersistentParsedStore) Open(fileID string, dropFirst bool) (*parser.SampleStore, error) {
	if !pps.IsParsed(fileID, dropFirst) {
		return nil, nil
	}

	key := cacheKey(fileID, dropFirst)

	pps.mu.RLock()
	dbPath := pps.cache[key]
	pps.mu.RUnlock()

	// Verify file still exists
	if _, err := os.Stat(dbPath); err != nil {
		pps.mu.Lock()
		delete(pps.cache, key)
		pps.mu.Unlock()
		return nil, nil
	}

	fmt.Printf("[ParsedStore] Opening existing parsed DB for file %s\n", shortID(fileID))

	store, err := parser.OpenSampleStoreReadOnly(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parsed DB: %w", err)
	}

	return store, nil
}

// CreateForFile creates a new SampleStore for parsing a file.
// The store will be set up to save to the persistent location.
func (pps *PersistentParsedStore) CreateForFile(fileID string, dropFirst bool) (*parser.SampleStore, error) {
	dbPath := pps.GetDBPath(fileID, dropFirst)

	// Remove any existing file (in case of re-parse)
	os.Remove(dbPath)

	fmt.Printf("[ParsedStore] Creating new parsed DB for file %s\n", shortID(fileID))

	store, err := parser.NewSampleStoreAtPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parsed DB: %w", err)
	}

	return store, nil
}

// MarkComplete marks a file as successfully parsed and ready for reuse.
func (pps *PersistentParsedStore) MarkComplete(fileID string, dropFirst bool) {
	pps.mu.Lock()
	pps.cache[cacheKey(fileID, dropFirst)] = pps.GetDBPath(fileID, dropFirst)
	pps.mu.Unlock()
	fmt.Printf("[ParsedStore] Marked file %s as parsed and ready for reuse\n", shortID(fileID))
}

// Delete removes the parsed DBs for a file under both drop-first policies
// (call when the original file is deleted).
func (pps *PersistentParsedStore) Delete(fileID string) error {
	pps.mu.Lock()
	delete(pps.cache, cacheKey(fileID, false))
	delete(pps.cache, cacheKey(fileID, true))
	pps.mu.Unlock()

	for _, dropFirst := range []bool{false, true} {
		dbPath := pps.GetDBPath(fileID, dropFirst)
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete parsed DB: %w", err)
		}
	}

	fmt.Printf("[ParsedStore] Deleted parsed DBs for file %s\n", shortID(fileID))
	return nil
}

// List returns all file IDs that have at least one parsed database.
func (pps *PersistentParsedStore) List() []string {
	pps.mu.RLock()
	defer pps.mu.RUnlock()

	seen := make(map[string]struct{}, len(pps.cache))
	fileIDs := make([]string, 0, len(pps.cache))
	for key := range pps.cache {
		id := strings.TrimSuffix(key, dropFirstSuffix)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		fileIDs = append(fileIDs, id)
	}
	return fileIDs
}

// Stats returns statistics about the parsed store.
func (pps *PersistentParsedStore) Stats() map[string]interface{} {
	pps.mu.RLock()
	defer pps.mu.RUnlock()

	var totalSize int64
	for key, dbPath := range pps.cache {
		if info, err := os.Stat(dbPath); err == nil {
			totalSize += info.Size()
		} else {
			// File missing, remove from cache
			delete(pps.cache, key)
		}
	}

	return map[string]interface{}{
		"parsedCount": len(pps.cache),
		"totalSize":   totalSize,
		"parsedDir":   pps.parsedDir,
	}
}

// CleanupOrphaned removes parsed DBs that don't have corresponding raw files.
// rawFileIDs should be the list of file IDs that exist in the file storage.
func (pps *PersistentParsedStore) CleanupOrphaned(rawFileIDs []string) int {
	validIDs := make(map[string]bool)
	for _, id := range rawFileIDs {
		validIDs[id] = true
	}

	pps.mu.Lock()
	defer pps.mu.Unlock()

	removed := 0
	for key := range pps.cache {
		fileID := strings.TrimSuffix(key, dropFirstSuffix)
		if !validIDs[fileID] {
			dbPath := pps.cache[key]
			os.Remove(dbPath)
			delete(pps.cache, key)
			removed++
			fmt.Printf("[ParsedStore] Cleaned up orphaned parsed DB for file %s\n", shortID(fileID))
		}
	}

	return removed
}
