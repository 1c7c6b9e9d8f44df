package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anshulpatel/event-waitlist-service/internal/model"
)

// querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so every query below runs unchanged inside or outside a locked scope.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed Store. Per-event exclusion is implemented with a
// transaction holding a row-level lock on the event row:
//
//	SELECT ... FOR UPDATE acquires an exclusive lock on the event row the
//	moment the SELECT executes inside the transaction. Any other transaction
//	attempting the same lock blocks until this one commits or rolls back,
//	which serialises concurrent check-then-act sequences per event and
//	eliminates the read-count/write race that causes overbooking and
//	duplicate waitlist positions.
type Postgres struct {
	db       *pgxpool.Pool
	q        querier
	lockWait time.Duration
}

// NewPostgres constructs a Postgres store on the given pool. lockWait bounds
// how long a locked scope waits for the event row lock.
func NewPostgres(db *pgxpool.Pool, lockWait time.Duration) *Postgres {
	return &Postgres{db: db, q: db, lockWait: lockWait}
}

// WithEventLock runs fn inside a transaction that holds the event row lock.
func (p *Postgres) WithEventLock(ctx context.Context, eventID string, fn func(tx Tx) error) (err error) {
	if p.db == nil {
		return errors.New("event lock scopes cannot be nested")
	}

	ctx, cancel := context.WithTimeout(ctx, p.lockWait)
	defer cancel()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	// Bound the row-lock wait on the database side as well, so a contended
	// event surfaces as a retryable failure instead of an open-ended stall.
	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockWait.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isLockTimeout(err) {
			return ErrEventBusy
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	if err = fn(&Postgres{q: tx, lockWait: p.lockWait}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isLockTimeout recognises lock_timeout expiry (55P03), statement
// cancellation (57014) and context deadline expiry as retryable contention.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "55P03" || pgErr.Code == "57014"
	}
	return errors.Is(err, context.DeadlineExceeded)
}

const eventColumns = `id, name, description, capacity, has_waitlist, waitlist_capacity, registration_open, auto_promote, created_at`

func (p *Postgres) CreateEvent(ctx context.Context, event *model.Event) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Name, event.Description, event.Capacity,
		event.HasWaitlist, event.WaitlistCapacity, event.RegistrationOpen,
		event.AutoPromote, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (p *Postgres) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := p.q.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.Description, &e.Capacity, &e.HasWaitlist,
		&e.WaitlistCapacity, &e.RegistrationOpen, &e.AutoPromote, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

func (p *Postgres) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Capacity, &e.HasWaitlist,
			&e.WaitlistCapacity, &e.RegistrationOpen, &e.AutoPromote, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const registrationColumns = `id, event_id, user_id, status, waitlist_position, registered_at,
	confirmed_at, cancelled_at, cancellation_reason, attended_at, promoted_from_waitlist_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.ID, &r.EventID, &r.UserID, &r.Status, &r.WaitlistPosition,
		&r.RegisteredAt, &r.ConfirmedAt, &r.CancelledAt, &r.CancellationReason,
		&r.AttendedAt, &r.PromotedFromWaitlistAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := p.q.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.WaitlistPosition,
		reg.RegisteredAt, reg.ConfirmedAt, reg.CancelledAt, reg.CancellationReason,
		reg.AttendedAt, reg.PromotedFromWaitlistAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (p *Postgres) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(p.q.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (p *Postgres) FindActiveByUserEvent(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(p.q.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2 AND status = ANY($3)`,
		eventID, userID, statusStrings(model.ActiveStatuses),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find active registration: %w", err)
	}
	return reg, nil
}

func (p *Postgres) CountByStatus(ctx context.Context, eventID string, statuses ...model.Status) (int, error) {
	var count int
	err := p.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = ANY($2)`,
		eventID, statusStrings(statuses),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return count, nil
}

func (p *Postgres) UpdateRegistration(ctx context.Context, reg *model.Registration) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE registrations
		 SET status = $2, waitlist_position = $3, confirmed_at = $4, cancelled_at = $5,
		     cancellation_reason = $6, attended_at = $7, promoted_from_waitlist_at = $8
		 WHERE id = $1`,
		reg.ID, reg.Status, reg.WaitlistPosition, reg.ConfirmedAt, reg.CancelledAt,
		reg.CancellationReason, reg.AttendedAt, reg.PromotedFromWaitlistAt,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListWaitlisted(ctx context.Context, eventID string) ([]model.Registration, error) {
	return p.listRegistrations(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND status = $2
		 ORDER BY waitlist_position ASC, registered_at ASC, id ASC`,
		eventID, model.StatusWaitlisted,
	)
}

func (p *Postgres) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return p.listRegistrations(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY registered_at ASC, id ASC`,
		eventID,
	)
}

func (p *Postgres) listRegistrations(ctx context.Context, sql string, args ...any) ([]model.Registration, error) {
	rows, err := p.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
