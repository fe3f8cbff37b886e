// Package store holds the PostgreSQL connection and error-mapping
// plumbing shared by the db package's server back-end. It has no
// knowledge of tables, rows, or changesets — that is the db package's
// job — only of pgx itself.
package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	idleInTransactionSessionTimeout = 10 * time.Second
	statementTimeout                = 10 * time.Second

	initialApplicationName = "rltbl"
)

// Standard PostgreSQL error codes the core distinguishes.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	ErrorCodeSerializationFailure = "40001"
	ErrorCodeDeadlockDetected     = "40P01"
	ErrorCodeUniqueViolation      = "23505"
)

// See: https://www.postgresql.org/docs/current/runtime-config-client.html#GUC-CLIENT-MIN-MESSAGES
var noticeSeverityToLogLevel = map[string]zerolog.Level{ //nolint:gochecknoglobals
	"DEBUG":   zerolog.DebugLevel,
	"LOG":     zerolog.InfoLevel,
	"INFO":    zerolog.InfoLevel,
	"NOTICE":  zerolog.InfoLevel,
	"WARNING": zerolog.WarnLevel,
}

// InitPostgres opens a connection pool against databaseURI, logging
// server notices through logger and tagging every connection with an
// application_name so slow queries are attributable in pg_stat_activity.
func InitPostgres(ctx context.Context, databaseURI string, logger zerolog.Logger) (*pgxpool.Pool, errors.E) {
	dbconfig, err := pgxpool.ParseConfig(strings.TrimSpace(databaseURI))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	dbconfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.
			WithLevel(noticeSeverityToLogLevel[notice.SeverityUnlocalized]).
			Fields(ErrorDetails((*pgconn.PgError)(notice))).
			Bool("postgres", true).
			Send()
	}
	dbconfig.ConnConfig.RuntimeParams["application_name"] = initialApplicationName
	dbconfig.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = strconv.FormatInt(idleInTransactionSessionTimeout.Milliseconds(), 10)
	dbconfig.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(statementTimeout.Milliseconds(), 10)

	conn, err := pgx.ConnectConfig(ctx, dbconfig.ConnConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	logger.Info().
		Str("serverVersion", conn.PgConn().ParameterStatus("server_version")).
		Str("serverEncoding", conn.PgConn().ParameterStatus("server_encoding")).
		Msg("database connection successful")
	_ = conn.Close(ctx)

	dbpool, err := pgxpool.NewWithConfig(ctx, dbconfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	context.AfterFunc(ctx, dbpool.Close)

	return dbpool, nil
}
