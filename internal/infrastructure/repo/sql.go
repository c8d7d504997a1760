package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"trip-provider/internal/domain"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect captures what differs between the SQL engines the order store runs
// on. Queries are written with ? placeholders.
type Dialect struct {
	Name            string
	numbered        bool
	uniqueViolation func(error) bool
	timeArg         func(time.Time) any
	migrationDriver func(*sql.DB) (database.Driver, error)
}

func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const orderColumns = `id, product_type, currency, total, fees, status, voucher_code, invoice_id, payment_id, idempotency_key, quote_token_hash, payload_snapshot, itinerary_id, selected_refs, created_at`

type SQLOrderRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLOrderRepo wraps an open database. The schema must already exist; see
// Migrate.
func NewSQLOrderRepo(db *sql.DB, dialect Dialect) *SQLOrderRepo {
	return &SQLOrderRepo{db: db, dialect: dialect}
}

// Migrate applies the embedded migrations for the dialect.
func Migrate(db *sql.DB, dialect Dialect) error {
	src, err := iofs.New(migrationsFS, "migrations/"+dialect.Name)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}
	driver, err := dialect.migrationDriver(db)
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect.Name, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *SQLOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	query := r.dialect.rebind(`INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	key := sql.NullString{String: o.IdempotencyKey, Valid: o.IdempotencyKey != ""}
	_, err := r.db.ExecContext(ctx, query,
		o.ID,
		string(o.ProductType),
		o.Currency,
		o.Total,
		o.Fees,
		string(o.Status),
		o.VoucherCode,
		o.InvoiceID,
		o.PaymentID,
		key,
		o.QuoteTokenHash,
		o.PayloadSnapshot,
		o.ItineraryID,
		o.SelectedRefs,
		r.dialect.timeArg(o.CreatedAt),
	)
	if err != nil {
		if r.dialect.uniqueViolation(err) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *SQLOrderRepo) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	query := r.dialect.rebind(`SELECT ` + orderColumns + ` FROM orders WHERE id = ?`)
	return r.queryOne(ctx, query, id)
}

func (r *SQLOrderRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error) {
	query := r.dialect.rebind(`SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = ?`)
	return r.queryOne(ctx, query, key)
}

func (r *SQLOrderRepo) List(ctx context.Context, page, pageSize int) ([]domain.Order, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	query := r.dialect.rebind(`SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`)
	rows, err := r.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]domain.Order, 0, pageSize)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}
	return out, total, nil
}

func (r *SQLOrderRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLOrderRepo) Close() error {
	return r.db.Close()
}

func (r *SQLOrderRepo) queryOne(ctx context.Context, query string, arg any) (*domain.Order, bool, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o           domain.Order
		productType string
		status      string
		key         sql.NullString
	)
	err := row.Scan(
		&o.ID,
		&productType,
		&o.Currency,
		&o.Total,
		&o.Fees,
		&status,
		&o.VoucherCode,
		&o.InvoiceID,
		&o.PaymentID,
		&key,
		&o.QuoteTokenHash,
		&o.PayloadSnapshot,
		&o.ItineraryID,
		&o.SelectedRefs,
		timeScanner{&o.CreatedAt},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.ProductType = domain.ProductType(strings.TrimSpace(productType))
	o.Status = domain.OrderStatus(status)
	o.Currency = strings.TrimSpace(o.Currency)
	o.IdempotencyKey = key.String
	return &o, nil
}

// sqliteTimeLayout is fixed width so text timestamps sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeScanner reads timestamps stored natively (Postgres) or as text
// (SQLite).
type timeScanner struct{ t *time.Time }

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v.UTC()
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		*s.t = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (s timeScanner) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	*s.t = t.UTC()
	return nil
}
