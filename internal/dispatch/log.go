package dispatch

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Delivery statuses.
const (
	StatusSent  = "sent"
	StatusError = "error"
)

// LogEntry records one delivery attempt. Entries are append-only.
type LogEntry struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenantId"`
	DocumentID        string    `json:"documentId,omitempty"`
	DocumentNumber    string    `json:"documentNumber"`
	Recipient         string    `json:"recipient"`
	Subject           string    `json:"subject"`
	Status            string    `json:"status"`
	Provider          string    `json:"provider"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	Error             string    `json:"error,omitempty"`
	Link              string    `json:"link,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// LogRepo stores delivery log entries.
type LogRepo interface {
	Append(ctx context.Context, entry LogEntry) error
}

// MemoryLogRepo keeps entries in memory.
type MemoryLogRepo struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewMemoryLogRepo constructs an empty MemoryLogRepo.
func NewMemoryLogRepo() *MemoryLogRepo {
	return &MemoryLogRepo{}
}

// Append adds entry.
func (r *MemoryLogRepo) Append(ctx context.Context, entry LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of all entries in append order.
func (r *MemoryLogRepo) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.entries...)
}

// PGLogRepo appends entries to the delivery_log table.
type PGLogRepo struct {
	DB *sql.DB
}

// Append inserts entry.
func (r *PGLogRepo) Append(ctx context.Context, e LogEntry) error {
	const query = `
INSERT INTO delivery_log (
	id, tenant_id, document_id, document_number, recipient, subject,
	status, provider, provider_message_id, error, link, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.DB.ExecContext(ctx, query,
		e.ID,
		e.TenantID,
		nullString(e.DocumentID),
		e.DocumentNumber,
		e.Recipient,
		e.Subject,
		e.Status,
		e.Provider,
		nullString(e.ProviderMessageID),
		nullString(e.Error),
		nullString(e.Link),
		e.CreatedAt,
	)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ LogRepo = (*MemoryLogRepo)(nil)
	_ LogRepo = (*PGLogRepo)(nil)
)
