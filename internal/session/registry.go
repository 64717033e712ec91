package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
	"docpilot/internal/retention"
	"docpilot/pkg/logger"
)

// MaxAge is how long a session token stays valid after it is minted.
const MaxAge = 7 * 24 * time.Hour

// NoticeExpired is the user-facing signal that an expired token was
// replaced. A corrupted token is replaced silently; expiry is not.
const NoticeExpired = "Your session has expired. A new session has been started."

// Resolution is the outcome of resolving a client-supplied token.
type Resolution struct {
	// Token is the effective session token: the caller's when still valid,
	// otherwise a freshly minted one.
	Token string
	// Documents are the caller's own (non-sample) documents.
	Documents []retention.DocumentInfo
	// Notice carries a user-facing status message, if any.
	Notice string
}

// Registry maps opaque session tokens to their document sets and enforces
// the session expiry policy.
type Registry struct {
	ledger *retention.Ledger
	store  interfaces.VectorStore
	log    *logger.Logger
}

// NewRegistry creates a Registry over the given ledger and vector store.
func NewRegistry(ledger *retention.Ledger, store interfaces.VectorStore, log *logger.Logger) *Registry {
	return &Registry{ledger: ledger, store: store, log: log}
}

// Mint issues a fresh token. The creation time is embedded in the token so
// expiry needs no server-side session state.
func Mint(now time.Time) string {
	return fmt.Sprintf("%d.%s", now.Unix(), uuid.New().String())
}

// creationTime extracts the embedded creation timestamp of a token.
func creationTime(token string) (time.Time, error) {
	prefix, _, ok := strings.Cut(token, ".")
	if !ok {
		return time.Time{}, fmt.Errorf("token has no timestamp prefix")
	}
	secs, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("token timestamp is not numeric: %w", err)
	}
	return time.Unix(secs, 0), nil
}

// Resolve maps a client-supplied token (possibly empty) to an effective
// token and its visible document set.
//
// No token mints a new one. A token whose creation time cannot be parsed is
// treated as corrupted and silently replaced. A token older than MaxAge is
// replaced with an explicit expiry notice. A valid token keeps its ledger
// documents.
func (r *Registry) Resolve(token string, now time.Time) Resolution {
	if token == "" {
		return Resolution{Token: Mint(now)}
	}

	created, err := creationTime(token)
	if err != nil {
		r.log.Warn(fmt.Sprintf("Replacing corrupted session token: %v", err))
		return Resolution{Token: Mint(now)}
	}
	if now.Sub(created) > MaxAge {
		return Resolution{Token: Mint(now), Notice: NoticeExpired}
	}

	return Resolution{
		Token:     token,
		Documents: r.ledger.DocumentsForSession(token),
	}
}

// Remove deletes filename from the session's visible set and, when the
// session owns the document, from the index and ledger as well.
//
// Sample documents are immortal and shared, so a sample name only leaves
// the in-memory set. A document the session owns is deleted index-first: if
// the index delete fails, the visible set is returned unchanged with a
// failure status; a ledger entry orphaned by a late ledger failure is
// reclaimed by the next sweep. A filename with no backing entry is dropped
// from the set anyway, keeping the caller's list consistent with storage.
func (r *Registry) Remove(ctx context.Context, token, filename string, visible []string) ([]string, bool, string) {
	rec, found := r.ledger.Get(filename)

	if found && rec.IsSample {
		return without(visible, filename), true, fmt.Sprintf("Removed %s from your view (sample documents stay available to everyone)", filename)
	}

	if found && rec.SessionToken == token {
		err := r.store.Delete(ctx, map[string]interface{}{
			schema.MetadataKeySource:    filename,
			schema.MetadataKeySessionID: token,
		})
		if err != nil {
			r.log.Error(fmt.Sprintf("Failed to delete chunks of %s: %v", filename, err))
			return visible, false, fmt.Sprintf("Could not remove %s, please try again", filename)
		}
		if err := r.ledger.Remove(filename); err != nil {
			r.log.Warn(fmt.Sprintf("Chunks of %s deleted but ledger entry remains: %v", filename, err))
		}
		return without(visible, filename), true, fmt.Sprintf("Removed %s", filename)
	}

	// Unknown to storage (or owned elsewhere): treat as already gone.
	return without(visible, filename), true, fmt.Sprintf("Removed %s", filename)
}

func without(set []string, name string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
