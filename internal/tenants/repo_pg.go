package tenants

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// GetBySlug fetches a tenant by slug.
func (r *PGRepo) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	const query = `
SELECT id, slug, name, email, address, currency, timezone, logo_url, accent_color,
       invoice_template_id, quote_template_id, receipt_template_id, output_folder_id,
       delegated_credential
FROM tenants
WHERE slug = $1
LIMIT 1`
	var t Tenant
	var email, address, currency, timezone, logoURL, accent sql.NullString
	var invoiceTpl, quoteTpl, receiptTpl, folder, credential sql.NullString
	err := r.DB.QueryRowContext(ctx, query, NormalizeSlug(slug)).Scan(
		&t.ID,
		&t.Slug,
		&t.Name,
		&email,
		&address,
		&currency,
		&timezone,
		&logoURL,
		&accent,
		&invoiceTpl,
		&quoteTpl,
		&receiptTpl,
		&folder,
		&credential,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	t.Email = email.String
	t.Address = address.String
	t.Currency = currency.String
	t.Timezone = timezone.String
	t.Branding = Branding{LogoURL: logoURL.String, AccentColor: accent.String}
	t.Templates = Templates{Invoice: invoiceTpl.String, Quote: quoteTpl.String, Receipt: receiptTpl.String}
	t.OutputFolderID = folder.String
	t.DelegatedCredential = credential.String
	return t, nil
}

// UpdateDelegatedCredential stores a sealed credential envelope for a tenant.
func (r *PGRepo) UpdateDelegatedCredential(ctx context.Context, slug, envelope string) error {
	const query = `
UPDATE tenants
SET delegated_credential = $1, updated_at = NOW()
WHERE slug = $2`
	res, err := r.DB.ExecContext(ctx, query, envelope, NormalizeSlug(slug))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
