package adapter

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gapassess/gap/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed schema/postgres.sql
var postgresSchema string

// SQLSTATE codes raised when the user_id column type rejects the identity format
const (
	pgInvalidTextRepresentation = "22P02"
	pgDatatypeMismatch          = "42804"
)

// Postgres implements Database on a hosted PostgreSQL service
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn. When key is not empty it is used as the connection password,
// so the endpoint URL and the access credential can be configured separately.
func NewPostgres(ctx context.Context, dsn, key string) (*Postgres, error) {
	if dsn == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "postgres DSN is empty")
	}

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse postgres DSN")
	}
	if key != "" {
		cfg.Password = key
	}

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, model.Classify(model.ErrStoreUnavailable,
			goerr.Wrap(err, "failed to ping postgres", goerr.V("host", cfg.Host)))
	}

	return &Postgres{db: db}, nil
}

// NewPostgresWithDB wraps an already opened connection pool
func NewPostgresWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type migrateConfig struct {
	ownerIDType string
}

type MigrateOption func(*migrateConfig)

// WithTextOwnerIDs declares owner columns as text instead of uuid, so identities that are not
// UUIDs can be stored. It only affects tables that do not exist yet.
func WithTextOwnerIDs() MigrateOption {
	return func(c *migrateConfig) {
		c.ownerIDType = "text"
	}
}

func postgresSchemaFor(ownerIDType string) string {
	return strings.ReplaceAll(postgresSchema, "OWNER_ID_TYPE", ownerIDType)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context, opts ...MigrateOption) error {
	cfg := migrateConfig{ownerIDType: "uuid"}
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, err := p.db.ExecContext(ctx, postgresSchemaFor(cfg.ownerIDType)); err != nil {
		return classifyPgError(goerr.Wrap(err, "failed to apply schema", goerr.V("owner_id_type", cfg.ownerIDType)))
	}
	return nil
}

func (p *Postgres) UpsertProfile(ctx context.Context, userID model.UserID) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO profiles (id) VALUES ($1)
        ON CONFLICT (id) DO NOTHING
    `, string(userID))
	if err != nil {
		return classifyPgError(goerr.Wrap(err, "failed to upsert profile", goerr.V("user_id", userID)))
	}
	return nil
}

func (p *Postgres) InsertProgressEntry(ctx context.Context, row *ProgressRow) (*ProgressRow, error) {
	inputs, err := json.Marshal(row.Inputs)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "failed to marshal inputs", goerr.V("error", err.Error()))
	}
	result, err := json.Marshal(row.Result)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "failed to marshal result", goerr.V("error", err.Error()))
	}

	out := *row
	err = p.db.QueryRowContext(ctx, `
        INSERT INTO progress_entries (entry_id, user_id, inputs, result)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `, string(row.EntryID), string(row.UserID), inputs, result).Scan(&out.RowID, &out.CreatedAt)
	if err != nil {
		return nil, classifyPgError(goerr.Wrap(err, "failed to insert progress entry", goerr.V("user_id", row.UserID)))
	}

	return &out, nil
}

func (p *Postgres) InsertRecommendation(ctx context.Context, row *RecommendationRow) error {
	analysis, err := json.Marshal(row.Analysis)
	if err != nil {
		return goerr.Wrap(model.ErrInvalidArgument, "failed to marshal analysis", goerr.V("error", err.Error()))
	}

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO ai_recommendations (progress_entry_id, analysis)
        VALUES ($1, $2)
    `, row.ProgressRowID, analysis)
	if err != nil {
		return classifyPgError(goerr.Wrap(err, "failed to insert recommendation", goerr.V("progress_entry_id", row.ProgressRowID)))
	}
	return nil
}

func (p *Postgres) SelectProgressEntries(ctx context.Context, q ProgressQuery) ([]*ProgressRow, error) {
	order := "ASC"
	if q.Direction.Normalize() == model.SortDesc {
		order = "DESC"
	}

	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}

	rows, err := p.db.QueryContext(ctx, `
        SELECT id, entry_id, user_id::text, inputs, result, created_at
        FROM progress_entries
        WHERE user_id = $1
        ORDER BY created_at `+order+`, id `+order+`
        LIMIT $2
    `, string(q.UserID), limit)
	if err != nil {
		return nil, classifyPgError(goerr.Wrap(err, "failed to select progress entries", goerr.V("user_id", q.UserID)))
	}
	defer rows.Close()

	var out []*ProgressRow
	for rows.Next() {
		var (
			r              ProgressRow
			entryID        string
			userID         string
			inputs, result []byte
		)
		if err := rows.Scan(&r.RowID, &entryID, &userID, &inputs, &result, &r.CreatedAt); err != nil {
			return nil, classifyPgError(goerr.Wrap(err, "failed to scan progress entry", goerr.V("user_id", q.UserID)))
		}
		r.EntryID = model.EntryID(entryID)
		r.UserID = model.UserID(userID)
		if err := json.Unmarshal(inputs, &r.Inputs); err != nil {
			return nil, goerr.Wrap(err, "failed to decode inputs", goerr.V("entry_id", entryID))
		}
		if err := json.Unmarshal(result, &r.Result); err != nil {
			return nil, goerr.Wrap(err, "failed to decode result", goerr.V("entry_id", entryID))
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(goerr.Wrap(err, "failed to iterate progress entries", goerr.V("user_id", q.UserID)))
	}

	return out, nil
}

func (p *Postgres) SelectRecommendations(ctx context.Context, rowIDs []int64) ([]*RecommendationRow, error) {
	if len(rowIDs) == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
        SELECT progress_entry_id, analysis, created_at
        FROM ai_recommendations
        WHERE progress_entry_id = ANY($1)
    `, rowIDs)
	if err != nil {
		return nil, classifyPgError(goerr.Wrap(err, "failed to select recommendations"))
	}
	defer rows.Close()

	var out []*RecommendationRow
	for rows.Next() {
		var (
			r        RecommendationRow
			analysis []byte
		)
		if err := rows.Scan(&r.ProgressRowID, &analysis, &r.CreatedAt); err != nil {
			return nil, classifyPgError(goerr.Wrap(err, "failed to scan recommendation"))
		}
		if err := json.Unmarshal(analysis, &r.Analysis); err != nil {
			return nil, goerr.Wrap(err, "failed to decode analysis", goerr.V("progress_entry_id", r.ProgressRowID))
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(goerr.Wrap(err, "failed to iterate recommendations"))
	}

	return out, nil
}

func (p *Postgres) InsertChatMessage(ctx context.Context, row *ChatRow) error {
	var sessionID sql.NullString
	if row.SessionID != "" {
		sessionID = sql.NullString{String: string(row.SessionID), Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
        INSERT INTO chat_messages (user_id, role, content, session_id)
        VALUES ($1, $2, $3, $4)
    `, string(row.UserID), string(row.Role), row.Content, sessionID)
	if err != nil {
		return classifyPgError(goerr.Wrap(err, "failed to insert chat message", goerr.V("user_id", row.UserID)))
	}
	return nil
}

func (p *Postgres) SelectChatMessages(ctx context.Context, q ChatQuery) ([]*ChatRow, error) {
	var (
		where strings.Builder
		args  = []any{string(q.UserID)}
	)
	where.WriteString("user_id = $1")
	if q.SessionID != "" {
		args = append(args, string(q.SessionID))
		where.WriteString(" AND session_id = $2")
	}

	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	args = append(args, limit)
	limitArg := "$" + strconv.Itoa(len(args))

	rows, err := p.db.QueryContext(ctx, `
        SELECT id, user_id::text, role, content, session_id, created_at
        FROM chat_messages
        WHERE `+where.String()+`
        ORDER BY created_at ASC, id ASC
        LIMIT `+limitArg, args...)
	if err != nil {
		return nil, classifyPgError(goerr.Wrap(err, "failed to select chat messages", goerr.V("user_id", q.UserID)))
	}
	defer rows.Close()

	var out []*ChatRow
	for rows.Next() {
		var (
			r         ChatRow
			userID    string
			role      string
			sessionID sql.NullString
		)
		if err := rows.Scan(&r.RowID, &userID, &role, &r.Content, &sessionID, &r.CreatedAt); err != nil {
			return nil, classifyPgError(goerr.Wrap(err, "failed to scan chat message", goerr.V("user_id", q.UserID)))
		}
		r.UserID = model.UserID(userID)
		r.Role = model.ChatRole(role)
		r.SessionID = model.ChatSessionID(sessionID.String)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(goerr.Wrap(err, "failed to iterate chat messages", goerr.V("user_id", q.UserID)))
	}

	return out, nil
}

// classifyPgError tags err as a schema mismatch or an unavailable store
func classifyPgError(wrapped error) error {
	var pgErr *pgconn.PgError
	if errors.As(wrapped, &pgErr) {
		switch pgErr.Code {
		case pgInvalidTextRepresentation, pgDatatypeMismatch:
			return model.Classify(model.ErrSchemaMismatch,
				goerr.Wrap(wrapped, "owner identity does not fit the column type",
					goerr.V("sqlstate", pgErr.Code),
					goerr.V("detail", pgErr.Message)))
		}
	}

	return model.Classify(model.ErrStoreUnavailable, wrapped)
}
