package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	URI             string // postgres://..., sqlite://path, file:..., :memory:
	Table           string // default "medical_documents"
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

var reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsSQLURI reports whether uri selects the SQL store.
func IsSQLURI(uri string) bool {
	u := strings.ToLower(uri)
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") ||
		strings.HasPrefix(u, "sqlite://") || strings.HasPrefix(u, "file:") || u == ":memory:"
}

// OpenSQL opens the primary SQL store. Postgres goes through a pgx pool
// wrapped as *sql.DB; SQLite uses modernc.org/sqlite. The connection is not
// required to be up: Connected pings and migrates lazily.
func OpenSQL(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = "medical_documents"
	}
	if !reIdent.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	uri := strings.TrimSpace(cfg.URI)
	lower := strings.ToLower(uri)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		logger.Info("connecting to database", "driver", "pgx", "table", cfg.Table)
		pc, err := pgxpool.ParseConfig(uri)
		if err != nil {
			logger.Error("failed to parse database uri", "error", err)
			return nil, err
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		if cfg.MinConns > 0 {
			pc.MinConns = cfg.MinConns
		}
		if cfg.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = cfg.MaxConnLifetime
		}
		if cfg.MaxConnIdleTime > 0 {
			pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "medical-lab"

		dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(dctx, pc)
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			return nil, err
		}
		// Wrap pool as *sql.DB
		db := stdlib.OpenDBFromPool(pool)
		return newSQLStore(db, pool, dialectPostgres, cfg, logger), nil

	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"), lower == ":memory:":
		dsn := uri
		if strings.HasPrefix(lower, "sqlite://") {
			dsn = uri[len("sqlite://"):]
		}
		logger.Info("opening database", "driver", "sqlite", "dsn", dsn, "table", cfg.Table)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// one writer; also keeps a :memory: database alive across calls
		db.SetMaxOpenConns(1)
		return newSQLStore(db, nil, dialectSQLite, cfg, logger), nil
	}
	return nil, fmt.Errorf("unsupported sql store uri %q", uri)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d dialect) rebind(q string) string {
	if d != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
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

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// timeArg keeps SQLite timestamps fixed-width so text ordering is time ordering.
func (d dialect) timeArg(t time.Time) any {
	if d == dialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

func (d dialect) schema(table string) []string {
	ts, real, js := "TIMESTAMPTZ", "DOUBLE PRECISION", "JSONB"
	if d == dialectSQLite {
		ts, real, js = "TEXT", "REAL", "TEXT"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	base64_data TEXT NOT NULL,
	extracted_text TEXT NULL,
	ocr_results %[3]s NULL,
	text_count INTEGER NULL,
	confidence_score %[2]s NULL,
	processing_time %[2]s NULL,
	processing_method TEXT NOT NULL,
	metadata %[3]s NOT NULL,
	created_at %[4]s NOT NULL,
	updated_at %[4]s NOT NULL
)`, table, real, js, ts),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_patient_created ON %[1]s (patient_id, created_at DESC)`, table),
	}
}

// sqlTime scans TIMESTAMPTZ values and SQLite text timestamps.
type sqlTime struct{ t time.Time }

var sqlTimeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (s *sqlTime) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		s.t = x.UTC()
		return nil
	case string:
		return s.parse(x)
	case []byte:
		return s.parse(string(x))
	case nil:
		s.t = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", v)
}

func (s *sqlTime) parse(v string) error {
	for _, layout := range sqlTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			s.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}
