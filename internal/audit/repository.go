// Package audit provides access to the command_log table for recording
// and querying commands the hub has forwarded to devices.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommandLog represents a single forwarded command.
type CommandLog struct {
	ID             string    `json:"id"`
	UDID           string    `json:"udid"`
	CommandType    string    `json:"command_type"`
	Body           string    `json:"body,omitempty"`
	ControllerConn string    `json:"controller_conn"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter controls which command log entries to return.
type Filter struct {
	UDID        string // optional: filter by target device
	CommandType string // optional: filter by command type (touch/down, key/press, ...)
	Limit       int    // default 50, max 200
	Offset      int    // pagination offset
}

// ListResult contains the paginated command log results.
type ListResult struct {
	Commands []CommandLog `json:"commands"`
	Total    int          `json:"total"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
}

// Repository defines the interface for command log operations.
type Repository interface {
	Create(ctx context.Context, entry *CommandLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores command log entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new command log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new command log entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *CommandLog) error {
	if entry.ID == "" {
		entry.ID = "cmd-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, udid, command_type, body, controller_conn, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UDID, entry.CommandType, entry.Body, entry.ControllerConn,
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}

	return nil
}

// List returns command log entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for command log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.UDID != "" {
		conditions = append(conditions, "udid = ?")
		args = append(args, filter.UDID)
	}
	if filter.CommandType != "" {
		conditions = append(conditions, "command_type = ?")
		args = append(args, filter.CommandType)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_log %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command logs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, udid, command_type, body, controller_conn, created_at FROM command_log %s ORDER BY created_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command logs: %w", err)
	}
	defer rows.Close()

	var entries []CommandLog
	for rows.Next() {
		var entry CommandLog
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.UDID, &entry.CommandType,
			&entry.Body, &entry.ControllerConn, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		entry.CreatedAt = t

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command logs: %w", err)
	}

	if entries == nil {
		entries = []CommandLog{}
	}

	return &ListResult{
		Commands: entries,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}
