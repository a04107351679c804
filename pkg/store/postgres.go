package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	chaterrors "github.com/mahaj/duochat/pkg/errors"
	"github.com/mahaj/duochat/pkg/model"
)

const uniqueViolation = "23505"

// Postgres stores users and messages in the tables created by
// db.MigratePostgres.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration

	// appendMu keeps id and timestamp assignment in the same order for
	// appends issued by this process.
	appendMu sync.Mutex
	clock    *stamper
}

func NewPostgres(db *sql.DB, timeout time.Duration) *Postgres {
	return &Postgres{db: db, timeout: timeout, clock: newStamper(time.Microsecond)}
}

// OpenPostgres is NewPostgres with the clock seeded from the newest stored
// message, so a wall clock that stepped back across a restart cannot place
// new messages before old ones.
func OpenPostgres(ctx context.Context, db *sql.DB, timeout time.Duration) (*Postgres, error) {
	p := NewPostgres(db, timeout)
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var last sql.NullTime
	if err := db.QueryRowContext(ctx, `SELECT max(timestamp) FROM messages`).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read last message timestamp: %w", err)
	}
	if last.Valid {
		p.clock.seed(last.Time)
	}
	return p, nil
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Postgres) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	p.appendMu.Lock()
	defer p.appendMu.Unlock()

	msg = cloneMessage(msg)
	msg.Timestamp = p.clock.next()
	var recipient sql.NullInt64
	if msg.RecipientID != nil {
		recipient = sql.NullInt64{Int64: *msg.RecipientID, Valid: true}
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO messages (content, timestamp, sender_id, recipient_id)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		msg.Content, msg.Timestamp, msg.SenderID, recipient,
	).Scan(&msg.ID)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

const selectMessages = `SELECT m.id, m.content, m.timestamp, m.sender_id, u.username, m.recipient_id
	FROM messages m JOIN users u ON u.id = m.sender_id`

func (p *Postgres) QueryGlobal(ctx context.Context) ([]model.Message, error) {
	return p.query(ctx, selectMessages+`
	WHERE m.recipient_id IS NULL
	ORDER BY m.timestamp ASC, m.id ASC`)
}

func (p *Postgres) QueryPair(ctx context.Context, a, b int64) ([]model.Message, error) {
	return p.query(ctx, selectMessages+`
	WHERE (m.sender_id = $1 AND m.recipient_id = $2) OR (m.sender_id = $2 AND m.recipient_id = $1)
	ORDER BY m.timestamp ASC, m.id ASC`, a, b)
}

func (p *Postgres) query(ctx context.Context, q string, args ...any) ([]model.Message, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		var recipient sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Content, &m.Timestamp, &m.SenderID, &m.SenderName, &recipient); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		if recipient.Valid {
			r := recipient.Int64
			m.RecipientID = &r
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (model.User, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	u := model.User{Username: username}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash,
	).Scan(&u.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.User{}, fmt.Errorf("%w: username %q", chaterrors.ErrConflict, username)
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) UserByName(ctx context.Context, username string) (Credentials, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var c Credentials
	err := p.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`, username,
	).Scan(&c.User.ID, &c.User.Username, &c.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, fmt.Errorf("%w: user %q", chaterrors.ErrNotFound, username)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to get user: %w", err)
	}
	return c, nil
}

func (p *Postgres) ListUsersExcept(ctx context.Context, userID int64) ([]model.User, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, username FROM users WHERE id <> $1 ORDER BY username ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}
