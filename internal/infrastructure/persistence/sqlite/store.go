package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements climbing.Store and climbing.Writer on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an opened database (see Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// maxParams keeps IN lists under SQLite's host parameter limit.
const maxParams = 500

// ─────────────────────────────────────────────────────────────────────────────
// Gyms
// ─────────────────────────────────────────────────────────────────────────────

const gymColumns = `g.id, g.abv, g.brand, g.name, g.city, g.kind`

// FindGym returns a gym by its short code, case-insensitively.
func (s *Store) FindGym(ctx context.Context, abv string) (*climbing.Gym, error) {
	query := `SELECT ` + gymColumns + ` FROM gyms g WHERE lower(g.abv) = ?`

	row := s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(abv)))
	g, err := scanGym(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrGymNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gym: %w", err)
	}
	return g, nil
}

// ListGyms returns all gyms ordered by code.
func (s *Store) ListGyms(ctx context.Context) ([]*climbing.Gym, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gymColumns+` FROM gyms g ORDER BY g.abv`)
	if err != nil {
		return nil, fmt.Errorf("failed to list gyms: %w", err)
	}
	defer rows.Close()

	var gyms []*climbing.Gym
	for rows.Next() {
		g, err := scanGym(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gym: %w", err)
		}
		gyms = append(gyms, g)
	}
	return gyms, rows.Err()
}

// SaveGym inserts or updates a gym.
func (s *Store) SaveGym(ctx context.Context, g *climbing.Gym) error {
	kind := g.Kind
	if kind == "" {
		kind = climbing.GymKindBoulder
	}
	query := `
		INSERT INTO gyms (id, abv, brand, name, city, kind)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			abv = excluded.abv,
			brand = excluded.brand,
			name = excluded.name,
			city = excluded.city,
			kind = excluded.kind
	`
	if _, err := s.db.ExecContext(ctx, query, string(g.ID), g.Abv, g.Brand, g.Name, g.City, string(kind)); err != nil {
		return fmt.Errorf("failed to save gym %s: %w", g.Abv, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Climbers
// ─────────────────────────────────────────────────────────────────────────────

// SaveClimber inserts or renames a climber.
func (s *Store) SaveClimber(ctx context.Context, id shared.ClimberID, name string) error {
	query := `
		INSERT INTO climbers (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`
	if _, err := s.db.ExecContext(ctx, query, string(id), name); err != nil {
		return fmt.Errorf("failed to save climber: %w", err)
	}
	return nil
}

// ListClimbers returns every climber id.
func (s *Store) ListClimbers(ctx context.Context) ([]shared.ClimberID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM climbers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list climbers: %w", err)
	}
	defer rows.Close()

	var ids []shared.ClimberID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan climber: %w", err)
		}
		ids = append(ids, shared.ClimberID(id))
	}
	return ids, rows.Err()
}

// Thresholds returns the climber's bands per gym.
func (s *Store) Thresholds(ctx context.Context, climber shared.ClimberID) (climbing.Thresholds, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gym_id, positions FROM climber_thresholds WHERE climber_id = ?`, string(climber))
	if err != nil {
		return nil, fmt.Errorf("failed to get thresholds: %w", err)
	}
	defer rows.Close()

	out := make(climbing.Thresholds)
	for rows.Next() {
		var gymID, raw string
		if err := rows.Scan(&gymID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan thresholds: %w", err)
		}
		var positions []int
		if err := json.Unmarshal([]byte(raw), &positions); err != nil {
			return nil, fmt.Errorf("failed to decode thresholds of gym %s: %w", gymID, err)
		}
		band, err := climbing.NewThresholdBand(positions...)
		if err != nil {
			return nil, fmt.Errorf("gym %s: %w", gymID, err)
		}
		out[shared.GymID(gymID)] = band
	}
	return out, rows.Err()
}

// SetThresholds stores the climber's band for a gym.
func (s *Store) SetThresholds(ctx context.Context, climber shared.ClimberID, gym shared.GymID, band climbing.ThresholdBand) error {
	if band.IsZero() {
		return shared.ErrInvalidThresholdBand
	}
	raw, err := json.Marshal(band.Positions())
	if err != nil {
		return fmt.Errorf("failed to encode thresholds: %w", err)
	}
	query := `
		INSERT INTO climber_thresholds (climber_id, gym_id, positions) VALUES (?, ?, ?)
		ON CONFLICT (climber_id, gym_id) DO UPDATE SET positions = excluded.positions
	`
	if _, err := s.db.ExecContext(ctx, query, string(climber), string(gym), string(raw)); err != nil {
		return fmt.Errorf("failed to save thresholds: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Problems
// ─────────────────────────────────────────────────────────────────────────────

// FindProblems returns the problems matching pred, ordered by id, with their
// attributes.
func (s *Store) FindProblems(ctx context.Context, pred climbing.ProblemPredicate) ([]*climbing.Problem, error) {
	where, args := predicateSQL(pred)
	query := `
		SELECT p.id, p.grade, p.sector_id, p.removed, p.added_on, ` + gymColumns + `
		FROM problems p
		JOIN gyms g ON g.id = p.gym_id
		WHERE ` + where + `
		ORDER BY p.id
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find problems: %w", err)
	}
	defer rows.Close()

	var (
		problems []*climbing.Problem
		byID     = make(map[shared.ProblemID]*climbing.Problem)
	)
	for rows.Next() {
		var (
			p       climbing.Problem
			g       climbing.Gym
			id      string
			addedOn string
			gymID   string
			kind    string
		)
		if err := rows.Scan(&id, &p.Grade, &p.SectorID, &p.Removed, &addedOn,
			&gymID, &g.Abv, &g.Brand, &g.Name, &g.City, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan problem: %w", err)
		}
		p.ID = shared.ProblemID(id)
		g.ID = shared.GymID(gymID)
		g.Kind = climbing.GymKind(kind)
		p.Gym = g
		if p.AddedOn, err = timeutil.ParseDate(addedOn); err != nil {
			return nil, fmt.Errorf("problem %s: bad added_on %q: %w", id, addedOn, err)
		}
		problems = append(problems, &p)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadAttributes(ctx, problems, byID); err != nil {
		return nil, err
	}
	return problems, nil
}

func (s *Store) loadAttributes(ctx context.Context, problems []*climbing.Problem, byID map[shared.ProblemID]*climbing.Problem) error {
	for start := 0; start < len(problems); start += maxParams {
		end := min(start+maxParams, len(problems))
		args := make([]any, 0, end-start)
		for _, p := range problems[start:end] {
			args = append(args, string(p.ID))
		}

		query := `
			SELECT pa.problem_id, a.category, a.name, a.description, a.image
			FROM problem_attributes pa
			JOIN attributes a ON a.id = pa.attribute_id
			WHERE pa.problem_id IN (` + placeholders(len(args)) + `)
			ORDER BY pa.problem_id, a.category, a.name
		`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to load attributes: %w", err)
		}
		for rows.Next() {
			var (
				problemID, category string
				a                   climbing.Attribute
			)
			if err := rows.Scan(&problemID, &category, &a.Name, &a.Description, &a.Image); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan attribute: %w", err)
			}
			a.Category = climbing.Category(category)
			if p, ok := byID[shared.ProblemID(problemID)]; ok {
				p.Attributes = append(p.Attributes, a)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// SaveProblem inserts or updates a problem and replaces its attributes.
func (s *Store) SaveProblem(ctx context.Context, p *climbing.Problem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO problems (id, gym_id, sector_id, grade, removed, added_on)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				gym_id = excluded.gym_id,
				sector_id = excluded.sector_id,
				grade = excluded.grade,
				removed = excluded.removed,
				added_on = excluded.added_on
		`
		if _, err := tx.ExecContext(ctx, query, string(p.ID), string(p.Gym.ID), p.SectorID,
			p.Grade, p.Removed, timeutil.FormatDate(p.AddedOn)); err != nil {
			if isForeignKeyViolation(err) {
				return shared.WrapError("climbing", "SaveProblem", shared.ErrIntegrity, "unknown gym "+string(p.Gym.ID), err)
			}
			return fmt.Errorf("failed to save problem %s: %w", p.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM problem_attributes WHERE problem_id = ?`, string(p.ID)); err != nil {
			return fmt.Errorf("failed to clear attributes: %w", err)
		}
		for _, a := range p.Attributes {
			if !a.Category.IsValid() {
				return shared.NewDomainError("climbing", "SaveProblem", shared.ErrInvalidInput, "unknown attribute category: "+string(a.Category))
			}
			id, err := upsertAttribute(ctx, tx, a)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO problem_attributes (problem_id, attribute_id) VALUES (?, ?)`,
				string(p.ID), id); err != nil {
				return fmt.Errorf("failed to link attribute: %w", err)
			}
		}
		return nil
	})
}

// upsertAttribute keeps existing descriptions and images when the new ones
// are empty.
func upsertAttribute(ctx context.Context, tx *sql.Tx, a climbing.Attribute) (int64, error) {
	query := `
		INSERT INTO attributes (category, name, description, image) VALUES (?, ?, ?, ?)
		ON CONFLICT (category, name) DO UPDATE SET
			description = CASE WHEN excluded.description <> '' THEN excluded.description ELSE attributes.description END,
			image = CASE WHEN excluded.image <> '' THEN excluded.image ELSE attributes.image END
	`
	if _, err := tx.ExecContext(ctx, query, string(a.Category), a.Key(), a.Description, a.Image); err != nil {
		return 0, fmt.Errorf("failed to save attribute %s: %w", a.Key(), err)
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM attributes WHERE category = ? AND name = ?`, string(a.Category), a.Key()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get attribute id: %w", err)
	}
	return id, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sessions and attempts
// ─────────────────────────────────────────────────────────────────────────────

// FindSessions returns the climber's sessions inside window with their
// records, by ascending date.
func (s *Store) FindSessions(ctx context.Context, climber shared.ClimberID, window shared.DateRange) ([]*climbing.Session, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	where, args := windowSQL(climber, window)

	query := `
		SELECT s.id, s.date, s.duration, ` + gymColumns + `
		FROM sessions s
		JOIN gyms g ON g.id = s.gym_id
		WHERE ` + where + `
		ORDER BY s.date, s.id
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}
	defer rows.Close()

	var (
		sessions []*climbing.Session
		byID     = make(map[shared.SessionID]*climbing.Session)
	)
	for rows.Next() {
		sess := &climbing.Session{ClimberID: climber}
		var id, date, gymID, kind string
		if err := rows.Scan(&id, &date, &sess.Duration,
			&gymID, &sess.Gym.Abv, &sess.Gym.Brand, &sess.Gym.Name, &sess.Gym.City, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.ID = shared.SessionID(id)
		sess.Gym.ID = shared.GymID(gymID)
		sess.Gym.Kind = climbing.GymKind(kind)
		if sess.Date, err = timeutil.ParseDate(date); err != nil {
			return nil, fmt.Errorf("session %s: bad date %q: %w", id, date, err)
		}
		sessions = append(sessions, sess)
		byID[sess.ID] = sess
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	attempts, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.session_id, a.problem_id, a.kind, a.attempts
		FROM attempts a
		JOIN sessions s ON s.id = a.session_id
		WHERE `+where+`
		ORDER BY a.seq
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer attempts.Close()

	for attempts.Next() {
		var (
			a                          climbing.Attempt
			sessionID, problemID, kind string
		)
		if err := attempts.Scan(&a.ID, &sessionID, &problemID, &kind, &a.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.ProblemID = shared.ProblemID(problemID)
		a.Kind = climbing.AttemptKind(kind)
		sess, ok := byID[shared.SessionID(sessionID)]
		if !ok {
			continue
		}
		if err := sess.Add(a); err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
	}
	return sessions, attempts.Err()
}

// SaveSession inserts or updates a session and replaces its records.
func (s *Store) SaveSession(ctx context.Context, sess *climbing.Session) error {
	records := sess.Records()
	for _, a := range records {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO sessions (id, climber_id, gym_id, date, duration)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				climber_id = excluded.climber_id,
				gym_id = excluded.gym_id,
				date = excluded.date,
				duration = excluded.duration
		`
		if _, err := tx.ExecContext(ctx, query, string(sess.ID), string(sess.ClimberID), string(sess.Gym.ID),
			timeutil.FormatDate(sess.Date), sess.Duration); err != nil {
			if isForeignKeyViolation(err) {
				return shared.WrapError("climbing", "SaveSession", shared.ErrIntegrity, "unknown climber or gym", err)
			}
			return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE session_id = ?`, string(sess.ID)); err != nil {
			return fmt.Errorf("failed to clear attempts: %w", err)
		}
		for _, a := range records {
			id := a.ID
			if id == "" {
				id = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attempts (id, session_id, problem_id, kind, attempts) VALUES (?, ?, ?, ?, ?)`,
				id, string(sess.ID), string(a.ProblemID), string(a.Kind), a.Attempts); err != nil {
				if isForeignKeyViolation(err) {
					return shared.WrapError("climbing", "SaveSession", shared.ErrIntegrity, "unknown problem "+string(a.ProblemID), err)
				}
				return fmt.Errorf("failed to save attempt: %w", err)
			}
		}
		return nil
	})
}

// CountAttempts counts the climber's records of kind on a problem in
// sessions strictly before the given date.
func (s *Store) CountAttempts(ctx context.Context, climber shared.ClimberID, problem shared.ProblemID, kind climbing.AttemptKind, before time.Time) (int, error) {
	query := `
		SELECT count(*)
		FROM attempts a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.climber_id = ? AND a.problem_id = ? AND a.kind = ? AND s.date < ?
	`
	var n int
	err := s.db.QueryRowContext(ctx, query, string(climber), string(problem), string(kind), timeutil.FormatDate(before)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return n, nil
}

// BestLevels returns the best level ever reached on each tried problem.
func (s *Store) BestLevels(ctx context.Context, climber shared.ClimberID) (map[shared.ProblemID]climbing.Level, error) {
	query := `
		SELECT a.problem_id,
			max(CASE a.kind WHEN 'top' THEN 2 WHEN 'zone' THEN 1 ELSE 0 END)
		FROM attempts a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.climber_id = ?
		GROUP BY a.problem_id
	`
	rows, err := s.db.QueryContext(ctx, query, string(climber))
	if err != nil {
		return nil, fmt.Errorf("failed to get best levels: %w", err)
	}
	defer rows.Close()

	out := make(map[shared.ProblemID]climbing.Level)
	for rows.Next() {
		var (
			id    string
			level int
		)
		if err := rows.Scan(&id, &level); err != nil {
			return nil, fmt.Errorf("failed to scan level: %w", err)
		}
		out[shared.ProblemID(id)] = climbing.Level(level)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanGym(row scanner) (*climbing.Gym, error) {
	var (
		g        climbing.Gym
		id, kind string
	)
	if err := row.Scan(&id, &g.Abv, &g.Brand, &g.Name, &g.City, &kind); err != nil {
		return nil, err
	}
	g.ID = shared.GymID(id)
	g.Kind = climbing.GymKind(kind)
	return &g, nil
}

// predicateSQL translates a predicate into a WHERE clause over problems p
// joined with gyms g.
func predicateSQL(pred climbing.ProblemPredicate) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	in := func(column string, values []string) string {
		if len(values) == 0 {
			return "0"
		}
		for _, v := range values {
			args = append(args, v)
		}
		return column + " IN (" + placeholders(len(values)) + ")"
	}

	for _, c := range pred.AnyOf {
		switch c.Field {
		case climbing.FieldGrade:
			clauses = append(clauses, in("lower(trim(p.grade))", c.Values))
		case climbing.FieldGym:
			clauses = append(clauses, in("lower(g.abv)", c.Values))
		case climbing.FieldType:
			clauses = append(clauses, tagExists(string(climbing.CategoryWallType), c.Values, in, &args))
		}
	}
	for _, t := range pred.Tags {
		clauses = append(clauses, tagExists(string(t.Category), t.Names, in, &args))
	}
	if pred.Removed != nil {
		if *pred.Removed {
			clauses = append(clauses, "p.removed = 1")
		} else {
			clauses = append(clauses, "p.removed = 0")
		}
	}
	if pred.IDs != nil {
		ids := make([]string, 0, len(pred.IDs))
		for _, id := range pred.IDs {
			ids = append(ids, string(id))
		}
		clauses = append(clauses, in("p.id", ids))
	}

	if len(clauses) == 0 {
		return "1", args
	}
	return strings.Join(clauses, " AND "), args
}

func tagExists(category string, names []string, in func(string, []string) string, args *[]any) string {
	*args = append(*args, category)
	return `EXISTS (
			SELECT 1 FROM problem_attributes pa
			JOIN attributes a ON a.id = pa.attribute_id
			WHERE pa.problem_id = p.id AND a.category = ? AND ` + in("a.name", names) + `)`
}

func windowSQL(climber shared.ClimberID, window shared.DateRange) (string, []any) {
	clauses := []string{"s.climber_id = ?"}
	args := []any{string(climber)}
	if !window.From.IsZero() {
		clauses = append(clauses, "s.date >= ?")
		args = append(args, timeutil.FormatDate(window.From))
	}
	if !window.To.IsZero() {
		clauses = append(clauses, "s.date < ?")
		args = append(args, timeutil.FormatDate(window.To))
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
