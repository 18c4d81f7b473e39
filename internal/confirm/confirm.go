// Package confirm implements the Confirmation Center (§4.I): an in-memory,
// FIFO-bounded table of human-approval requests gating sensitive tool
// calls. It is single-node and not a source of truth across restarts —
// pending entries are lost on crash by design.
package confirm

import (
	"sync"
	"time"

	"github.com/flycode/flycored/internal/config"
	"github.com/google/uuid"
)

// Status is a ConfirmationEntry's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusTimeout  Status = "timeout"
)

// DefaultTTL is the confirmation UI's approval window, distinct from the
// Write Manager's pending-write TTL.
const DefaultTTL = 120 * time.Second

const maxRecentEntries = 1000

// Entry is one confirmation request.
type Entry struct {
	ID         string
	Site       string
	Tool       string
	Summary    string
	Status     Status
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt time.Time
	TraceID    string
	Request    any // opaque payload, retained so the dispatcher can resume execution
}

// CreateInput is create_pending's argument set.
type CreateInput struct {
	Site    string
	Tool    string
	Summary string
	TraceID string
	Request any
}

// ResolveInput is resolve's argument set.
type ResolveInput struct {
	Approved    bool
	AlwaysAllow bool
}

// Center is the Confirmation Center.
type Center struct {
	mu      sync.Mutex
	entries map[string]*Entry
	order   []string // insertion order, newest appended

	appConfig *config.LiveAppConfig
}

// New builds a Confirmation Center wired to the live app config for
// always-allow persistence.
func New(appConfig *config.LiveAppConfig) *Center {
	return &Center{
		entries:   make(map[string]*Entry),
		appConfig: appConfig,
	}
}

// CreatePending implements create_pending (§4.I).
func (c *Center) CreatePending(in CreateInput) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry := &Entry{
		ID:        uuid.NewString(),
		Site:      in.Site,
		Tool:      in.Tool,
		Summary:   in.Summary,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
		TraceID:   in.TraceID,
		Request:   in.Request,
	}
	c.storeLocked(entry)
	return entry
}

// GetByID implements get_by_id (§4.I): lazy expiry flips a still-pending,
// past-deadline entry to timeout before it's returned.
func (c *Center) GetByID(id string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.expireIfDueLocked(entry)
	return entry, true
}

// Resolve implements resolve (§4.I). Idempotent: a terminal entry is
// returned as-is.
func (c *Center) Resolve(id string, in ResolveInput) (*Entry, bool) {
	c.mu.Lock()
	entry, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	c.expireIfDueLocked(entry)
	if entry.Status != StatusPending {
		c.mu.Unlock()
		return entry, true
	}

	now := time.Now()
	if in.Approved {
		entry.Status = StatusApproved
	} else {
		entry.Status = StatusRejected
	}
	entry.ResolvedAt = now
	site, tool := entry.Site, entry.Tool
	c.mu.Unlock()

	if in.Approved && in.AlwaysAllow && c.appConfig != nil {
		_ = c.appConfig.UpdateAlwaysAllow(site, tool, true)
	}
	return entry, true
}

// ShouldSkipConfirmation implements should_skip_confirmation (§4.I).
func (c *Center) ShouldSkipConfirmation(site, tool string) bool {
	if c.appConfig == nil {
		return false
	}
	return c.appConfig.ShouldSkipConfirmation(site, tool)
}

// ListRecent implements list_recent (§4.I): newest-first.
func (c *Center) ListRecent(limit int) []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 || limit > len(c.order) {
		limit = len(c.order)
	}
	out := make([]*Entry, 0, limit)
	for i := len(c.order) - 1; i >= 0 && len(out) < limit; i-- {
		entry := c.entries[c.order[i]]
		if entry == nil {
			continue
		}
		c.expireIfDueLocked(entry)
		out = append(out, entry)
	}
	return out
}

// GetRequestPayload implements get_request_payload (§4.I).
func (c *Center) GetRequestPayload(id string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return entry.Request, true
}

func (c *Center) expireIfDueLocked(entry *Entry) {
	if entry.Status == StatusPending && time.Now().After(entry.ExpiresAt) {
		entry.Status = StatusTimeout
		entry.ResolvedAt = time.Now()
	}
}

func (c *Center) storeLocked(entry *Entry) {
	if len(c.order) >= maxRecentEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[entry.ID] = entry
	c.order = append(c.order, entry.ID)
}
