package crm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PgStore is the PostgreSQL-backed CRM store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a store over the given connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Tenant returns a Store scoped to a single tenant.
func (s *PgStore) Tenant(id uuid.UUID) *TenantStore {
	return &TenantStore{db: s.pool, tenant: id}
}

// TenantStore implements Store for one tenant. All queries filter by
// tenant_id and all creates stamp it.
type TenantStore struct {
	db     DBTX
	tenant uuid.UUID
}

func (s *TenantStore) Companies(ctx context.Context) ([]Company, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name FROM companies WHERE tenant_id = $1 ORDER BY name`,
		s.tenant)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *TenantStore) Contacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, COALESCE(email, '') FROM contacts WHERE tenant_id = $1 ORDER BY name`,
		s.tenant)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *TenantStore) Stages(ctx context.Context) ([]Stage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, funnel_id, is_won, is_lost
		 FROM funnel_stages WHERE tenant_id = $1
		 ORDER BY funnel_id, position`,
		s.tenant)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var out []Stage
	for rows.Next() {
		var st Stage
		if err := rows.Scan(&st.ID, &st.Name, &st.FunnelID, &st.Won, &st.Lost); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *TenantStore) Sellers(ctx context.Context) ([]Seller, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name FROM sellers WHERE tenant_id = $1 ORDER BY name`,
		s.tenant)
	if err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	defer rows.Close()

	var out []Seller
	for rows.Next() {
		var sl Seller
		if err := rows.Scan(&sl.ID, &sl.Name); err != nil {
			return nil, fmt.Errorf("scan seller: %w", err)
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *TenantStore) CreateCompany(ctx context.Context, p CompanyParams) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO companies (id, tenant_id, name, tax_id, phone, email, address, state, city)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, s.tenant, p.Name,
		toPgText(p.TaxID), toPgText(p.Phone), toPgText(p.Email),
		toPgText(p.Address), toPgText(p.State), toPgText(p.City))
	if err != nil {
		return "", fmt.Errorf("create company: %w", err)
	}
	return id, nil
}

func (s *TenantStore) CreateContact(ctx context.Context, p ContactParams) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO contacts (id, tenant_id, name, email, phone, mobile, position, company_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, s.tenant, p.Name,
		toPgText(p.Email), toPgText(p.Phone), toPgText(p.Mobile),
		toPgText(p.Position), toPgText(p.CompanyID))
	if err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	return id, nil
}

func (s *TenantStore) CreateDeal(ctx context.Context, p DealParams) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx,
		`INSERT INTO deals (id, tenant_id, name, value, probability, expected_close, closed_at,
		                    stage_id, company_id, contact_id, assigned_to, created_by,
		                    source, status, days_inactive, lost_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		id, s.tenant, p.Name, p.Value, p.Probability,
		toPgText(p.ExpectedClose), toPgText(p.ClosedAt),
		p.StageID,
		toPgText(p.CompanyID), toPgText(p.ContactID),
		toPgText(p.AssignedTo), toPgText(p.CreatedBy),
		toPgText(p.Source), string(p.Status), p.DaysInactive,
		toPgText(p.LostReason))
	if err != nil {
		return "", fmt.Errorf("create deal: %w", err)
	}
	return id, nil
}

// toPgText converts a string to pgtype.Text, mapping empty to NULL.
func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
