package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour of a SQLJournal
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// SQLJournal stores entries in a SQL database
type SQLJournal struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database named by dsn and prepares the journal table.
// postgres:// and postgresql:// DSNs use PostgreSQL; anything else is treated
// as a SQLite database path, with an optional sqlite:// prefix.
func Open(dsn string) (*SQLJournal, error) {
	if dsn == "" {
		return nil, fmt.Errorf("journal DSN is required")
	}

	dialect := DialectSQLite
	source := strings.TrimPrefix(dsn, "sqlite://")
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = DialectPostgres
		source = dsn
	}

	db, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	j, err := NewSQLJournal(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// NewSQLJournal wraps an open database and ensures the journal table exists
func NewSQLJournal(db *sql.DB, dialect Dialect) (*SQLJournal, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported journal dialect: %q", dialect)
	}

	j := &SQLJournal{db: db, dialect: dialect}
	if err := j.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure plugin_journal table: %w", err)
	}
	return j, nil
}

// ensureTable creates the plugin_journal table if it doesn't exist
func (j *SQLJournal) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS plugin_journal (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL,
		plugin VARCHAR(255),
		version VARCHAR(255),
		archive TEXT,
		duration_us BIGINT NOT NULL DEFAULT 0,
		error_message TEXT,
		metadata JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_plugin_journal_timestamp ON plugin_journal(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_plugin_journal_plugin ON plugin_journal(plugin);
	`

	if j.dialect == DialectSQLite {
		query = `
		CREATE TABLE IF NOT EXISTS plugin_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL,
			plugin TEXT,
			version TEXT,
			archive TEXT,
			duration_us INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			metadata TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_plugin_journal_timestamp ON plugin_journal(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_plugin_journal_plugin ON plugin_journal(plugin);
		`
	}

	_, err := j.db.Exec(query)
	return err
}

// Record inserts an entry and sets its ID
func (j *SQLJournal) Record(ctx context.Context, entry *Entry) error {
	var metadataJSON []byte
	if len(entry.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO plugin_journal (
			timestamp, event_type, status,
			plugin, version, archive,
			duration_us, error_message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9
		) RETURNING id
	`

	err := j.db.QueryRowContext(ctx, query,
		entry.Timestamp, string(entry.EventType), string(entry.Status),
		nullString(entry.Plugin), nullString(entry.Version), nullString(entry.Archive),
		entry.Duration.Microseconds(), nullString(entry.Error), nullBytes(metadataJSON),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	return nil
}

// Recent returns matching entries, newest first
func (j *SQLJournal) Recent(ctx context.Context, filter Filter) ([]*Entry, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			plugin, version, archive,
			duration_us, error_message, metadata
		FROM plugin_journal
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.Plugin != "" {
		query += fmt.Sprintf(" AND plugin = $%d", argCount)
		args = append(args, filter.Plugin)
		argCount++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(filter.Status))
		argCount++
	}

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, filter.Since)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			types[i] = string(et)
		}

		if j.dialect == DialectPostgres {
			query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
			args = append(args, pq.Array(types))
			argCount++
		} else {
			placeholders := make([]string, len(types))
			for i, t := range types {
				placeholders[i] = fmt.Sprintf("$%d", argCount)
				args = append(args, t)
				argCount++
			}
			query += " AND event_type IN (" + strings.Join(placeholders, ", ") + ")"
		}
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                             Entry
			eventType, status             string
			plugin, version, archive, msg sql.NullString
			durationUS                    int64
			metadataJSON                  []byte
		)

		if err := rows.Scan(
			&e.ID, &e.Timestamp, &eventType, &status,
			&plugin, &version, &archive,
			&durationUS, &msg, &metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		e.EventType = EventType(eventType)
		e.Status = Status(status)
		e.Plugin = plugin.String
		e.Version = version.String
		e.Archive = archive.String
		e.Error = msg.String
		e.Duration = time.Duration(durationUS) * time.Microsecond

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}

	return entries, nil
}

// Ping checks the database connection
func (j *SQLJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database connection
func (j *SQLJournal) Close() error {
	return j.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
