package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// ConnInfo addresses a Postgres server from the machine running the host.
type ConnInfo struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// URL returns the connection string for c.
func (c ConnInfo) URL() string {
	db := c.Database
	if db == "" {
		db = "postgres"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// DatabaseAdmin prepares Postgres servers and their databases.
type DatabaseAdmin interface {
	WaitReady(ctx context.Context, conn ConnInfo) error
	EnsureDatabase(ctx context.Context, conn ConnInfo, name string) error
}

// PostgresAdmin implements DatabaseAdmin with pgx.
type PostgresAdmin struct {
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ DatabaseAdmin = (*PostgresAdmin)(nil)

// NewPostgresAdmin creates a PostgresAdmin that polls every pollInterval.
func NewPostgresAdmin(pollInterval time.Duration, logger *slog.Logger) *PostgresAdmin {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &PostgresAdmin{pollInterval: pollInterval, logger: logger.With("component", "postgres")}
}

// WaitReady polls the server until it accepts connections or ctx is done.
func (a *PostgresAdmin) WaitReady(ctx context.Context, conn ConnInfo) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = a.ping(ctx, conn)
		if lastErr == nil {
			a.logger.Info("postgres is ready", "host", conn.Host, "port", conn.Port, "attempts", attempt)
			return nil
		}
		a.logger.Debug("postgres not ready", "host", conn.Host, "port", conn.Port, "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres at %s:%d not ready: %w (last error: %v)", conn.Host, conn.Port, ctx.Err(), lastErr)
		case <-time.After(a.pollInterval):
		}
	}
}

func (a *PostgresAdmin) ping(ctx context.Context, info ConnInfo) error {
	conn, err := pgx.Connect(ctx, info.URL())
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

// EnsureDatabase creates the named database unless it already exists.
func (a *PostgresAdmin) EnsureDatabase(ctx context.Context, info ConnInfo, name string) error {
	info.Database = "postgres"
	conn, err := pgx.Connect(ctx, info.URL())
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", info.Host, info.Port, err)
	}
	defer conn.Close(context.Background())

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists); err != nil {
		return fmt.Errorf("look up database %s: %w", name, err)
	}
	if exists {
		a.logger.Info("database exists", "database", name)
		return nil
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	a.logger.Info("database created", "database", name)
	return nil
}
