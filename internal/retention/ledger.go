package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
	"docpilot/pkg/logger"
)

// Horizon is how long a non-sample document is retained after upload.
const Horizon = 7 * 24 * time.Hour

// Record is one ledger entry: the upload time and owning session of a
// tracked document. Sample records exist so the sweep can recognize and
// skip them.
type Record struct {
	UploadedAt   time.Time `json:"uploadedAt"`
	SessionToken string    `json:"sessionToken,omitempty"`
	IsSample     bool      `json:"isSample,omitempty"`
}

// DocumentInfo is the listing view of a ledger entry.
type DocumentInfo struct {
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Ledger is the durable record of every tracked document, keyed by source
// identifier and persisted as a JSON file. It is the sole authority for
// whether a document's chunks must be purged.
//
// All read-modify-write sequences run under one mutex; the file itself has
// no schema versioning and a corrupt or missing file reads as empty (fail
// open), which waives cleanup rather than blocking ingestion.
type Ledger struct {
	path string
	log  *logger.Logger

	mu sync.Mutex
}

// NewLedger creates a ledger persisted at path.
func NewLedger(path string, log *logger.Logger) *Ledger {
	return &Ledger{path: path, log: log}
}

// Record appends or overwrites the entry for source with the current time.
func (l *Ledger) Record(source, sessionToken string, isSample bool, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load()
	token := sessionToken
	if isSample {
		token = ""
	}
	entries[source] = Record{
		UploadedAt:   now.UTC(),
		SessionToken: token,
		IsSample:     isSample,
	}
	return l.persist(entries)
}

// Remove deletes the entry for source. Removing an absent entry is a no-op.
func (l *Ledger) Remove(source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load()
	if _, ok := entries[source]; !ok {
		return nil
	}
	delete(entries, source)
	return l.persist(entries)
}

// Get returns the entry for source, if any.
func (l *Ledger) Get(source string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.load()[source]
	return rec, ok
}

// DocumentsForSession lists every non-sample document owned by the token,
// newest first.
func (l *Ledger) DocumentsForSession(token string) []DocumentInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	var docs []DocumentInfo
	for source, rec := range l.load() {
		if rec.IsSample || rec.SessionToken != token {
			continue
		}
		docs = append(docs, DocumentInfo{Filename: source, UploadedAt: rec.UploadedAt})
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].Filename < docs[j].Filename
		}
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs
}

// Sweep purges every non-sample entry older than the horizon: the chunks
// are deleted from the vector store first, then the entry is dropped. If
// the index delete fails the entry stays, so the next sweep retries it.
// Sweeping twice with no ingestion in between is a no-op the second time.
func (l *Ledger) Sweep(ctx context.Context, store interfaces.VectorStore, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load()
	cutoff := now.Add(-Horizon)

	changed := false
	var firstErr error
	for source, rec := range entries {
		if rec.IsSample || !rec.UploadedAt.Before(cutoff) {
			continue
		}
		err := store.Delete(ctx, map[string]interface{}{schema.MetadataKeySource: source})
		if err != nil {
			l.log.Warn(fmt.Sprintf("Sweep could not delete chunks of %s, keeping entry: %v", source, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		l.log.Info(fmt.Sprintf("Sweep purged expired document %s", source))
		delete(entries, source)
		changed = true
	}

	if changed {
		if err := l.persist(entries); err != nil {
			return err
		}
	}
	return firstErr
}

// load reads the ledger file. Unreadable or corrupt storage is treated as
// "no tracked documents" to favor availability over strict retention.
func (l *Ledger) load() map[string]Record {
	entries := make(map[string]Record)
	data, err := os.ReadFile(l.path)
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		l.log.Warn(fmt.Sprintf("Ledger file %s is corrupt, treating as empty: %v", l.path, err))
		return make(map[string]Record)
	}
	return entries
}

func (l *Ledger) persist(entries map[string]Record) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger %s: %w", l.path, err)
	}
	return nil
}
