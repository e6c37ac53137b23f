package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"gathered/internal/engine"
	"gathered/internal/model"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrStudentNotFound      = errors.New("student not found")
)

// RegisterFunc decides the new registration from the locked event, the student's
// existing row (nil when none) and the current seat count.
type RegisterFunc func(ev *model.Event, existing *model.Registration, count int) (*model.Registration, error)

// UpdateFunc decides the new state of a locked registration.
type UpdateFunc func(ev *model.Event, reg *model.Registration) (*model.Registration, error)

// FeedbackFunc validates a feedback submission against the locked registration.
type FeedbackFunc func(ev *model.Event, reg *model.Registration, alreadySubmitted bool) error

type Repository interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
	GetEventByID(ctx context.Context, id uuid.UUID) (*model.Event, error)
	EventExists(ctx context.Context, e *model.Event) (bool, error)
	GetEventsByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Event, error)
	GetEventsFrom(ctx context.Context, fromDate string) ([]model.Event, error)
	CountRegistrations(ctx context.Context, eventID uuid.UUID) (int, error)

	RegisterTx(ctx context.Context, eventID, studentID uuid.UUID, decide RegisterFunc) (*model.Registration, error)
	UpdateRegistrationTx(ctx context.Context, registrationID uuid.UUID, decide UpdateFunc) (*model.Registration, error)
	GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error)
	GetRegistration(ctx context.Context, studentID, eventID uuid.UUID) (*model.Registration, error)
	GetRegistrationsByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Registration, error)
	GetRosterByEventID(ctx context.Context, eventID uuid.UUID) ([]model.RosterEntry, error)
	GetStudentByID(ctx context.Context, id uuid.UUID) (*model.Student, error)

	SubmitFeedbackTx(ctx context.Context, fb *model.Feedback, decide FeedbackFunc) error
	GetFeedbackByEventID(ctx context.Context, eventID uuid.UUID) ([]model.Feedback, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) runMigrations(migrationsDir, pattern string, reverse bool) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}
	return nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	if err := r.runMigrations(migrationsDir, "*.up.sql", false); err != nil {
		return err
	}
	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	if err := r.runMigrations(migrationsDir, "*.down.sql", true); err != nil {
		return err
	}
	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

const eventColumns = `
	id, admin_id, title, description, location,
	to_char(date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS'),
	max_attendees, picture_url, manual_status_override,
	to_char(manual_close_date, 'YYYY-MM-DD'), to_char(manual_close_time, 'HH24:MI:SS'),
	created_at, updated_at`

const registrationColumns = `
	id, student_id, event_id, status, registered_at,
	attended_at, absent_marked_at, cancelled_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// scanEvent reads NULL date or start_time as "" so the resolver reports the
// event as Unknown instead of failing the whole listing.
func scanEvent(row scanner) (*model.Event, error) {
	var e model.Event
	var date, start sql.NullString
	if err := row.Scan(
		&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Location,
		&date, &start, &e.EndTime,
		&e.MaxAttendees, &e.PictureURL, &e.ManualStatusOverride,
		&e.ManualCloseDate, &e.ManualCloseTime,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Date = date.String
	e.StartTime = start.String
	return &e, nil
}

func scanRegistration(row scanner) (*model.Registration, error) {
	var reg model.Registration
	if err := row.Scan(
		&reg.ID, &reg.StudentID, &reg.EventID, &reg.Status, &reg.RegisteredAt,
		&reg.AttendedAt, &reg.AbsentMarkedAt, &reg.CancelledAt, &reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	query := `
		INSERT INTO events (id, admin_id, title, description, location, date, start_time, end_time,
		                    max_attendees, picture_url, manual_status_override, manual_close_date, manual_close_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	row := r.db.QueryRowContext(ctx, query,
		e.ID, e.OwnerID, e.Title, e.Description, e.Location, e.Date, e.StartTime, e.EndTime,
		e.MaxAttendees, e.PictureURL, e.ManualStatusOverride, e.ManualCloseDate, e.ManualCloseTime,
	)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *repository) UpdateEvent(ctx context.Context, e *model.Event) error {
	query := `
		UPDATE events
		SET title = $2, description = $3, location = $4, date = $5, start_time = $6, end_time = $7,
		    max_attendees = $8, picture_url = $9, manual_status_override = $10,
		    manual_close_date = $11, manual_close_time = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	row := r.db.QueryRowContext(ctx, query,
		e.ID, e.Title, e.Description, e.Location, e.Date, e.StartTime, e.EndTime,
		e.MaxAttendees, e.PictureURL, e.ManualStatusOverride, e.ManualCloseDate, e.ManualCloseTime,
	)
	if err := row.Scan(&e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

func (r *repository) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) EventExists(ctx context.Context, e *model.Event) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE admin_id = $1 AND title = $2 AND date = $3 AND start_time = $4 AND location = $5 AND id <> $6
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, e.OwnerID, e.Title, e.Date, e.StartTime, e.Location, e.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check duplicate event: %w", err)
	}
	return exists, nil
}

func (r *repository) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func (r *repository) GetEventsByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Event, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE admin_id = $1 ORDER BY date ASC, start_time ASC`, ownerID)
}

// GetEventsFrom returns events dated fromDate or later. Events that started the
// day before may still be running past midnight, so callers pass yesterday.
func (r *repository) GetEventsFrom(ctx context.Context, fromDate string) ([]model.Event, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE date >= $1 ORDER BY date ASC, start_time ASC`, fromDate)
}

var countSeatsQuery = `
	SELECT COUNT(*)
	FROM registrations
	WHERE event_id = $1 AND status IN (` + seatFilter() + `)
`

func seatFilter() string {
	quoted := make([]string, 0, len(engine.SeatStatuses))
	for _, s := range engine.SeatStatuses {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return strings.Join(quoted, ", ")
}

func (r *repository) CountRegistrations(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, countSeatsQuery, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

// withTx runs fn in a transaction with a bounded statement timeout.
func (r *repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `SET LOCAL statement_timeout = '5s'`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to set statement timeout: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func lockEvent(ctx context.Context, tx *sql.Tx, eventID uuid.UUID) (*model.Event, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return e, nil
}

func (r *repository) RegisterTx(ctx context.Context, eventID, studentID uuid.UUID, decide RegisterFunc) (*model.Registration, error) {
	var out *model.Registration
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		event, err := lockEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, countSeatsQuery, eventID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count registrations: %w", err)
		}

		// active rows sort first so a stale cancelled row never hides a live one
		existing, err := scanRegistration(tx.QueryRowContext(ctx, `
			SELECT `+registrationColumns+`
			FROM registrations
			WHERE event_id = $1 AND student_id = $2
			ORDER BY (status = 'CANCELLED') ASC, updated_at DESC
			LIMIT 1
			FOR UPDATE
		`, eventID, studentID))
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to load existing registration: %w", err)
			}
			existing = nil
		}

		reg, err := decide(event, existing, count)
		if err != nil {
			return err
		}

		if existing != nil && existing.ID == reg.ID {
			err = updateRegistration(ctx, tx, reg)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO registrations (id, student_id, event_id, status, registered_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, reg.ID, reg.StudentID, reg.EventID, reg.Status, reg.RegisteredAt, reg.UpdatedAt)
			if err != nil {
				err = fmt.Errorf("failed to create registration: %w", err)
			}
		}
		if err != nil {
			return err
		}
		out = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func updateRegistration(ctx context.Context, tx *sql.Tx, reg *model.Registration) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE registrations
		SET status = $2, registered_at = $3, attended_at = $4, absent_marked_at = $5,
		    cancelled_at = $6, updated_at = $7
		WHERE id = $1
	`, reg.ID, reg.Status, reg.RegisteredAt, reg.AttendedAt, reg.AbsentMarkedAt, reg.CancelledAt, reg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}
	return nil
}

func (r *repository) UpdateRegistrationTx(ctx context.Context, registrationID uuid.UUID, decide UpdateFunc) (*model.Registration, error) {
	var out *model.Registration
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var eventID uuid.UUID
		if err := tx.QueryRowContext(ctx, `SELECT event_id FROM registrations WHERE id = $1`, registrationID).Scan(&eventID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRegistrationNotFound
			}
			return fmt.Errorf("failed to load registration: %w", err)
		}

		// event first, same order as RegisterTx
		event, err := lockEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		reg, err := scanRegistration(tx.QueryRowContext(ctx,
			`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, registrationID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRegistrationNotFound
			}
			return fmt.Errorf("failed to lock registration: %w", err)
		}

		next, err := decide(event, reg)
		if err != nil {
			return err
		}
		if err := updateRegistration(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) GetRegistrationByID(ctx context.Context, id uuid.UUID) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistration(ctx context.Context, studentID, eventID uuid.UUID) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE student_id = $1 AND event_id = $2
		ORDER BY (status = 'CANCELLED') ASC, updated_at DESC
		LIMIT 1
	`, studentID, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistrationsByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE student_id = $1
		ORDER BY registered_at DESC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

func (r *repository) GetRosterByEventID(ctx context.Context, eventID uuid.UUID) ([]model.RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.student_id, r.event_id, r.status, r.registered_at,
		       r.attended_at, r.absent_marked_at, r.cancelled_at, r.updated_at,
		       s.name, s.email
		FROM registrations r
		JOIN students s ON s.id = r.student_id
		WHERE r.event_id = $1 AND r.status <> $2
		ORDER BY s.name ASC
	`, eventID, string(engine.Cancelled))
	if err != nil {
		return nil, fmt.Errorf("failed to get roster: %w", err)
	}
	defer rows.Close()

	var roster []model.RosterEntry
	for rows.Next() {
		var e model.RosterEntry
		reg := &e.Registration
		if err := rows.Scan(
			&reg.ID, &reg.StudentID, &reg.EventID, &reg.Status, &reg.RegisteredAt,
			&reg.AttendedAt, &reg.AbsentMarkedAt, &reg.CancelledAt, &reg.UpdatedAt,
			&e.StudentName, &e.StudentEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		roster = append(roster, e)
	}
	return roster, rows.Err()
}

func (r *repository) GetStudentByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	var s model.Student
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email, cit_id FROM students WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Email, &s.CitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &s, nil
}

func (r *repository) SubmitFeedbackTx(ctx context.Context, fb *model.Feedback, decide FeedbackFunc) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		event, err := lockEvent(ctx, tx, fb.EventID)
		if err != nil {
			return err
		}

		reg, err := scanRegistration(tx.QueryRowContext(ctx, `
			SELECT `+registrationColumns+`
			FROM registrations
			WHERE event_id = $1 AND student_id = $2 AND status <> 'CANCELLED'
			LIMIT 1
		`, fb.EventID, fb.StudentID))
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to load registration: %w", err)
			}
			reg = nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM feedback WHERE event_id = $1 AND student_id = $2)`,
			fb.EventID, fb.StudentID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check feedback: %w", err)
		}

		if err := decide(event, reg, exists); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO feedback (id, student_id, event_id, rating, comments)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING submitted_at
		`, fb.ID, fb.StudentID, fb.EventID, fb.Rating, fb.Comments).Scan(&fb.SubmittedAt)
		if err != nil {
			return fmt.Errorf("failed to insert feedback: %w", err)
		}
		return nil
	})
}

func (r *repository) GetFeedbackByEventID(ctx context.Context, eventID uuid.UUID) ([]model.Feedback, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, event_id, rating, comments, submitted_at
		FROM feedback
		WHERE event_id = $1
		ORDER BY submitted_at DESC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	defer rows.Close()

	var list []model.Feedback
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.ID, &f.StudentID, &f.EventID, &f.Rating, &f.Comments, &f.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		list = append(list, f)
	}
	return list, rows.Err()
}
