package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mvnascimento/queuewatch/internal/health"
)

// Postgres is the remote ExclusionStore backend. It is addressed by a
// connection URL plus a service key used as the password.
//
// The connection is established once by Connect; operation failures after
// that are logged and mapped to the sentinel without retrying the
// connection. Health reflects the last connect outcome only.
//
// Connect may be called again at runtime through the reconnect endpoint
// while operations are in flight, so the pool swap is mutex-guarded and
// every operation reads the pool through getPool.
type Postgres struct {
	url     string
	key     string
	tracker *health.Tracker
	logger  *zap.Logger

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// NewPostgres validates credentials and builds an unconnected backend.
// Missing credentials are a deployment error and fail construction — the one
// case that refuses to degrade.
func NewPostgres(url, key string, tracker *health.Tracker, logger *zap.Logger) (*Postgres, error) {
	if url == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	if key == "" {
		return nil, fmt.Errorf("store service key is required")
	}

	return &Postgres{
		url:     url,
		key:     key,
		tracker: tracker,
		logger:  logger,
	}, nil
}

// Connect establishes the connection pool and pings it. The result is
// recorded in the health tracker and returned; it is never retried
// automatically afterwards.
func (p *Postgres) Connect(ctx context.Context) bool {
	poolConfig, err := pgxpool.ParseConfig(p.url)
	if err != nil {
		p.logger.Error("parse store URL failed", zap.Error(err))
		p.tracker.MarkDown(err)
		return false
	}

	poolConfig.ConnConfig.Password = p.key
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "queuewatch"
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		p.logger.Error("create store pool failed", zap.Error(err))
		p.tracker.MarkDown(err)
		return false
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		p.logger.Error("store ping failed", zap.Error(err))
		p.tracker.MarkDown(err)
		return false
	}

	p.mu.Lock()
	old := p.pool
	p.pool = pool
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
	p.tracker.MarkUp()

	p.logger.Info("remote store connection established")
	return true
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()

	if pool != nil {
		pool.Close()
	}
}

func (p *Postgres) getPool() *pgxpool.Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pool
}

// AddEntry inserts a new exclusion entry. The database assigns the ID.
func (p *Postgres) AddEntry(ctx context.Context, e NewEntry) string {
	if err := e.Validate(); err != nil {
		p.logger.Warn("rejected exclusion entry", zap.Error(err))
		return ""
	}
	pool := p.getPool()
	if pool == nil {
		return ""
	}

	query := `
		INSERT INTO exclusion_entries (entity_id, message_type, sent_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text
	`

	var id string
	err := pool.QueryRow(ctx, query, e.EntityID, string(e.MessageType), e.SentAt, e.ExpiresAt).Scan(&id)
	if err != nil {
		p.logger.Error("failed to insert exclusion entry",
			zap.Error(err),
			zap.String("entity_id", e.EntityID),
			zap.String("message_type", string(e.MessageType)),
		)
		p.tracker.RecordFailure(err)
		return ""
	}

	p.tracker.RecordSuccess()
	return id
}

// GetEntries returns all non-expired entries; filtering happens in SQL.
func (p *Postgres) GetEntries(ctx context.Context) []ExclusionEntry {
	pool := p.getPool()
	if pool == nil {
		return nil
	}

	query := `
		SELECT id::text, entity_id, message_type, sent_at, expires_at
		FROM exclusion_entries
		WHERE expires_at > NOW()
		ORDER BY sent_at
	`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		p.logger.Error("failed to query exclusion entries", zap.Error(err))
		p.tracker.RecordFailure(err)
		return nil
	}
	defer rows.Close()

	var entries []ExclusionEntry
	for rows.Next() {
		var e ExclusionEntry
		var mt string
		if err := rows.Scan(&e.ID, &e.EntityID, &mt, &e.SentAt, &e.ExpiresAt); err != nil {
			p.logger.Error("failed to scan exclusion entry", zap.Error(err))
			p.tracker.RecordFailure(err)
			return nil
		}
		e.MessageType = MessageType(mt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		p.logger.Error("failed to iterate exclusion entries", zap.Error(err))
		p.tracker.RecordFailure(err)
		return nil
	}

	p.tracker.RecordSuccess()
	return entries
}

// CleanupExpired deletes expired entries and reports how many went away.
func (p *Postgres) CleanupExpired(ctx context.Context) int {
	pool := p.getPool()
	if pool == nil {
		return 0
	}

	tag, err := pool.Exec(ctx, `DELETE FROM exclusion_entries WHERE expires_at <= NOW()`)
	if err != nil {
		p.logger.Error("failed to clean up expired entries", zap.Error(err))
		p.tracker.RecordFailure(err)
		return 0
	}

	p.tracker.RecordSuccess()
	return int(tag.RowsAffected())
}

// SetConfigValue upserts one config key.
func (p *Postgres) SetConfigValue(ctx context.Context, key, value string) bool {
	pool := p.getPool()
	if pool == nil {
		return false
	}

	query := `
		INSERT INTO system_config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := pool.Exec(ctx, query, key, value); err != nil {
		p.logger.Error("failed to set config value",
			zap.Error(err),
			zap.String("key", key),
		)
		p.tracker.RecordFailure(err)
		return false
	}

	p.tracker.RecordSuccess()
	return true
}

// GetConfigValue reads one config key. Missing keys and failures both come
// back as ("", false); failures are additionally logged.
func (p *Postgres) GetConfigValue(ctx context.Context, key string) (string, bool) {
	pool := p.getPool()
	if pool == nil {
		return "", false
	}

	var value string
	err := pool.QueryRow(ctx, `SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false
	}
	if err != nil {
		p.logger.Error("failed to get config value",
			zap.Error(err),
			zap.String("key", key),
		)
		p.tracker.RecordFailure(err)
		return "", false
	}

	p.tracker.RecordSuccess()
	return value, true
}

// GetAllConfig returns every stored config key, or an empty map on failure.
func (p *Postgres) GetAllConfig(ctx context.Context) map[string]string {
	out := make(map[string]string)
	pool := p.getPool()
	if pool == nil {
		return out
	}

	rows, err := pool.Query(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		p.logger.Error("failed to query config", zap.Error(err))
		p.tracker.RecordFailure(err)
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			p.logger.Error("failed to scan config row", zap.Error(err))
			p.tracker.RecordFailure(err)
			return map[string]string{}
		}
		out[k] = v
	}

	if err := rows.Err(); err != nil {
		p.logger.Error("failed to iterate config rows", zap.Error(err))
		p.tracker.RecordFailure(err)
		return map[string]string{}
	}

	p.tracker.RecordSuccess()
	return out
}

// Healthy reflects the last connect outcome; it performs no I/O.
func (p *Postgres) Healthy() bool {
	return p.tracker.Up()
}
