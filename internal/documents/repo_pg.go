package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectDocument = `
SELECT id, tenant_id, doc_type, number, currency, issue_date, due_date,
       client_name, client_email, client_address, subtotal, tax, total, notes, created_at
FROM documents`

// GetByNumber fetches a document by number for a tenant.
func (r *PGRepo) GetByNumber(ctx context.Context, tenantID, number string) (Document, error) {
	return r.getOne(ctx, selectDocument+`
WHERE tenant_id = $1 AND number = $2
LIMIT 1`, tenantID, number)
}

// GetByID fetches a document by ID for a tenant.
func (r *PGRepo) GetByID(ctx context.Context, tenantID, id string) (Document, error) {
	return r.getOne(ctx, selectDocument+`
WHERE tenant_id = $1 AND id::text = $2
LIMIT 1`, tenantID, id)
}

func (r *PGRepo) getOne(ctx context.Context, query string, args ...any) (Document, error) {
	var doc Document
	var docType string
	var currency, clientEmail, clientAddress, notes sql.NullString
	var issueDate, dueDate sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(
		&doc.ID,
		&doc.TenantID,
		&docType,
		&doc.Number,
		&currency,
		&issueDate,
		&dueDate,
		&doc.Client.Name,
		&clientEmail,
		&clientAddress,
		&doc.Subtotal,
		&doc.Tax,
		&doc.Total,
		&notes,
		&doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	doc.Type = Type(docType)
	doc.Currency = currency.String
	doc.Client.Email = clientEmail.String
	doc.Client.Address = clientAddress.String
	doc.Notes = notes.String
	if issueDate.Valid {
		doc.IssueDate = issueDate.Time
	}
	if dueDate.Valid {
		doc.DueDate = dueDate.Time
	}

	items, err := r.lineItems(ctx, doc.ID)
	if err != nil {
		return Document{}, err
	}
	doc.Items = items
	return doc, nil
}

func (r *PGRepo) lineItems(ctx context.Context, documentID string) ([]LineItem, error) {
	const query = `
SELECT description, quantity, unit_price
FROM document_line_items
WHERE document_id = $1
ORDER BY position ASC`
	rows, err := r.DB.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var out []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.Description, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
