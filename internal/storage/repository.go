package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/Pratyush576/expense-tracker-ui/internal/core"
)

// StoredTransaction pairs a transaction with its row identity. The labels
// carried in Transaction are whatever the last classification wrote; readers
// re-derive them from the current rules.
type StoredTransaction struct {
	ID string
	core.Transaction
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const transactionColumns = "id, date_iso, description, amount, payment_source, category, subcategory"

// InsertTransaction stores a new transaction and returns its generated ID.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		t.Date.Format("2006-01-02"),
		t.Description,
		t.Amount.String(),
		t.PaymentSource,
		t.Category,
		t.Subcategory)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"description", t.Description,
		"amount", t.Amount.String())
	return id, nil
}

// ListTransactions returns every stored transaction in date order.
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]StoredTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY date_iso, id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []StoredTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(rows *sql.Rows) (StoredTransaction, error) {
	var (
		t       StoredTransaction
		dateISO string
		amount  string
	)
	if err := rows.Scan(&t.ID, &dateISO, &t.Description, &amount,
		&t.PaymentSource, &t.Category, &t.Subcategory); err != nil {
		return StoredTransaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	date, err := time.Parse("2006-01-02", dateISO)
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("parse transaction date %q: %w", dateISO, err)
	}
	t.Date = date

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("parse transaction amount %q: %w", amount, err)
	}
	return t, nil
}

// UpdateTransactionCategory rewrites the category labels of the transaction
// matching the raw-field key. Returns core.ErrTransactionNotFound when no
// row matches.
func (r *SQLiteRepository) UpdateTransactionCategory(ctx context.Context, key core.TransactionKey, category, subcategory string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET category = ?, subcategory = ?
		 WHERE date_iso = ? AND description = ? AND amount = ? AND payment_source = ?`,
		category,
		subcategory,
		key.Date.Format("2006-01-02"),
		key.Description,
		key.Amount.String(),
		key.PaymentSource)
	if err != nil {
		return fmt.Errorf("update transaction category: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrTransactionNotFound
	}

	slog.InfoContext(ctx, "Transaction category updated",
		"description", key.Description,
		"category", category,
		"subcategory", subcategory)
	return nil
}

// UpdateLabels persists fresh classification labels for the given rows in
// one transaction.
func (r *SQLiteRepository) UpdateLabels(ctx context.Context, txns []StoredTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin label update: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE transactions SET category = ?, subcategory = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare label update: %w", err)
	}
	defer stmt.Close()

	for _, t := range txns {
		if _, err := stmt.ExecContext(ctx, t.Category, t.Subcategory, t.ID); err != nil {
			return fmt.Errorf("update labels for %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit label update: %w", err)
	}
	return nil
}

// PaymentSources returns the distinct payment sources seen so far.
func (r *SQLiteRepository) PaymentSources(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT payment_source FROM transactions
		 WHERE payment_source != '' ORDER BY payment_source`)
	if err != nil {
		return nil, fmt.Errorf("list payment sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan payment source: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment sources: %w", err)
	}
	return out, nil
}

// Settings returns the raw settings document, or nil when none was saved.
func (r *SQLiteRepository) Settings(ctx context.Context) ([]byte, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM settings WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return []byte(doc), nil
}

// SaveSettings replaces the settings document wholesale.
func (r *SQLiteRepository) SaveSettings(ctx context.Context, doc []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (id, document, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`,
		string(doc))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	slog.InfoContext(ctx, "Settings document saved", "bytes", len(doc))
	return nil
}
