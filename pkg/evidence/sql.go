package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect selects placeholder syntax for the evidence registry query.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Bound layouts match the ISO-8601 strings stored in created_at.
const (
	lowerBoundLayout = "2006-01-02T15:04:05-07:00"
	upperBoundLayout = "2006-01-02T15:04:05.000000-07:00"
)

// SQLProvider aggregates review outcomes directly from the evidence registry
// table. It only reads; the review workflow owns the rows.
type SQLProvider struct {
	db        *sql.DB
	dialect   Dialect
	companyID string
}

// NewSQLProvider creates a provider scoped to one company's evidence.
func NewSQLProvider(db *sql.DB, dialect Dialect, companyID string) (*SQLProvider, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported evidence dialect %q", dialect)
	}
	if companyID == "" {
		return nil, fmt.Errorf("evidence sql provider requires a company id")
	}
	return &SQLProvider{db: db, dialect: dialect, companyID: companyID}, nil
}

// OpenSQL opens the registry database for driver ("sqlite" or "postgres").
func OpenSQL(driver, dsn string) (*sql.DB, Dialect, error) {
	d := Dialect(driver)
	switch d {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", driver, err)
	}
	if d == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, d, nil
}

// Migrate creates the registry table if missing. It is meant for local
// SQLite databases; production registries are owned by the backend.
func (p *SQLProvider) Migrate(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS evidence_registry (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        company_id TEXT NOT NULL,
        drone_id TEXT,
        incident_id TEXT,
        framework_id TEXT NOT NULL,
        control_id TEXT NOT NULL,
        evidence_type TEXT NOT NULL,
        source_event_id INTEGER,
        reference_id TEXT,
        attestation TEXT,
        review_status TEXT,
        reviewed_by TEXT,
        reviewed_at TEXT,
        review_note TEXT,
        created_at TEXT NOT NULL
    );`
	if p.dialect == DialectPostgres {
		query = strings.Replace(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY", 1)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate evidence_registry: %w", err)
	}
	return nil
}

// Summary implements Provider.
func (p *SQLProvider) Summary(ctx context.Context, q Query) (Summary, error) {
	if err := q.Validate(); err != nil {
		return Summary{}, err
	}
	query, args, err := p.buildQuery(q)
	if err != nil {
		return Summary{}, err
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Summary{}, fmt.Errorf("query evidence summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := Summary{
		FrameworkID: q.FrameworkID,
		Scope:       string(ScopeOrg),
		Accepted:    map[string]int{},
		Pending:     map[string]int{},
		Rejected:    map[string]int{},
		Total:       map[string]int{},
	}
	if q.AssetScoped() {
		out.Scope = string(ScopeAsset)
	}

	for rows.Next() {
		var (
			controlID                          string
			accepted, pending, rejected, total sql.NullInt64
		)
		if err := rows.Scan(&controlID, &accepted, &pending, &rejected, &total); err != nil {
			return Summary{}, fmt.Errorf("scan evidence summary: %w", err)
		}
		out.Accepted[controlID] = int(accepted.Int64)
		out.Pending[controlID] = int(pending.Int64)
		out.Rejected[controlID] = int(rejected.Int64)
		out.Total[controlID] = int(total.Int64)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate evidence summary: %w", err)
	}
	return out, nil
}

const summarySelect = `SELECT control_id, ` +
	`SUM(CASE WHEN COALESCE(NULLIF(review_status, ''), 'pending') = 'accepted' THEN 1 ELSE 0 END) AS accepted, ` +
	`SUM(CASE WHEN COALESCE(NULLIF(review_status, ''), 'pending') = 'pending' THEN 1 ELSE 0 END) AS pending, ` +
	`SUM(CASE WHEN COALESCE(NULLIF(review_status, ''), 'pending') = 'rejected' THEN 1 ELSE 0 END) AS rejected, ` +
	`COUNT(*) AS total FROM evidence_registry`

// buildQuery renders the aggregation for q. Asset scope includes the
// asset's own evidence and org-level rows with no asset.
func (p *SQLProvider) buildQuery(q Query) (string, []any, error) {
	from, to, err := q.Bounds()
	if err != nil {
		return "", nil, err
	}

	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.Replace(clause, "?", p.placeholder(len(args)), 1))
	}

	add("company_id = ?", p.companyID)
	add("framework_id = ?", q.FrameworkID)
	if q.AssetScoped() {
		add("(drone_id = ? OR drone_id IS NULL)", q.AssetID)
	}
	if !from.IsZero() {
		add("created_at >= ?", from.Format(lowerBoundLayout))
	}
	if !to.IsZero() {
		add("created_at <= ?", to.Truncate(time.Microsecond).Format(upperBoundLayout))
	}

	query := summarySelect + " WHERE " + strings.Join(where, " AND ") + " GROUP BY control_id"
	return query, args, nil
}

func (p *SQLProvider) placeholder(n int) string {
	if p.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
