package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	_ "modernc.org/sqlite"

	"terraswarm/internal/domain"
	"terraswarm/internal/infra/config"
)

// Default circuit breaker settings for journal writes.
const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// Journal persists every lifecycle notification to SQLite so dashboards
// can query history after the fact. Writes go through a circuit
// breaker: when the database is sick the journal degrades to dropped
// history and orchestration is never blocked behind it.
type Journal struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// Open opens (or creates) the journal database at path and runs the
// schema migration.
func Open(path string, cfg config.BreakerConfig, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal db: %w", err)
	}

	return &Journal{
		db:      db,
		breaker: newBreaker(cfg, logger),
		logger:  logger,
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			type       TEXT NOT NULL,
			agent_id   TEXT NOT NULL DEFAULT '',
			task_id    TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func newBreaker(cfg config.BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[struct{}] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := parseDuration(cfg.Timeout, defaultTimeout)
	interval := parseDuration(cfg.Interval, defaultInterval)

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "journal",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// parseDuration parses a config duration string, falling back to def.
// Validation rejects malformed values earlier; this guards direct use.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Attach subscribes the journal to every event on the bus. Write
// failures are logged, never surfaced to the publisher. Returns the
// unsubscribe function.
func (j *Journal) Attach(bus domain.EventBus) func() {
	return bus.SubscribeAll(func(ctx context.Context, event domain.Event) {
		if err := j.Record(ctx, event); err != nil {
			j.logger.Warn("journal write dropped",
				"event", string(event.Type),
				"task_id", event.TaskID,
				"error", err,
			)
		}
	})
}

// Record persists one event through the circuit breaker. With the
// circuit open it fails fast without touching the database.
func (j *Journal) Record(ctx context.Context, event domain.Event) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := j.breaker.Execute(func() (struct{}, error) {
		_, err := j.db.ExecContext(ctx,
			"INSERT INTO events (type, agent_id, task_id, payload, created_at) VALUES (?, ?, ?, ?, ?)",
			string(event.Type), event.AgentID, event.TaskID, string(event.Payload),
			ts.UTC().Format(time.RFC3339Nano),
		)
		return struct{}{}, err
	})
	if err != nil {
		return domain.NewDomainError("Journal.Record", domain.ErrJournalWrite, err.Error())
	}
	return nil
}

// Recent returns the last n events, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]domain.Event, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := j.db.QueryContext(ctx,
		"SELECT type, agent_id, task_id, payload, created_at FROM events ORDER BY seq DESC LIMIT ?", n,
	)
	if err != nil {
		return nil, domain.WrapOp("Journal.Recent", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var typ, agentID, taskID, payload, createdStr string
		if err := rows.Scan(&typ, &agentID, &taskID, &payload, &createdStr); err != nil {
			return nil, domain.WrapOp("Journal.Recent", err)
		}
		event := domain.Event{
			Type:    domain.EventType(typ),
			AgentID: agentID,
			TaskID:  taskID,
		}
		if payload != "" {
			event.Payload = []byte(payload)
		}
		event.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		events = append(events, event)
	}
	return events, rows.Err()
}

// Len counts journaled events.
func (j *Journal) Len(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, domain.WrapOp("Journal.Len", err)
}

// State exposes the breaker state for monitoring.
func (j *Journal) State() gobreaker.State {
	return j.breaker.State()
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
