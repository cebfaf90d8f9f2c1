package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Store implements climbing.Store and climbing.Writer for PostgreSQL.
type Store struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewStore creates a new Store. Reads are retried on transient errors.
func NewStore(conn *Connection) *Store {
	return &Store{
		conn:    conn,
		retrier: retry.StoreRetrier(IsTransient),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Gyms
// ─────────────────────────────────────────────────────────────────────────────

const gymColumns = `g.id, g.abv, g.brand, g.name, g.city, g.kind`

// FindGym returns a gym by its short code, case-insensitively.
func (s *Store) FindGym(ctx context.Context, abv string) (*climbing.Gym, error) {
	query := `SELECT ` + gymColumns + ` FROM gyms g WHERE lower(g.abv) = $1`

	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (*climbing.Gym, error) {
		g, err := scanGym(s.conn.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(abv))))
		if IsNoRows(err) {
			return nil, shared.ErrGymNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get gym: %w", err)
		}
		return g, nil
	})
}

// ListGyms returns all gyms ordered by code.
func (s *Store) ListGyms(ctx context.Context) ([]*climbing.Gym, error) {
	query := `SELECT ` + gymColumns + ` FROM gyms g ORDER BY g.abv`

	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) ([]*climbing.Gym, error) {
		rows, err := s.conn.Query(ctx, query)
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
	})
}

// SaveGym inserts or updates a gym.
func (s *Store) SaveGym(ctx context.Context, g *climbing.Gym) error {
	kind := g.Kind
	if kind == "" {
		kind = climbing.GymKindBoulder
	}
	query := `
		INSERT INTO gyms (id, abv, brand, name, city, kind)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			abv = EXCLUDED.abv,
			brand = EXCLUDED.brand,
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			kind = EXCLUDED.kind
	`
	if _, err := s.conn.Exec(ctx, query, string(g.ID), g.Abv, g.Brand, g.Name, g.City, string(kind)); err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("climbing", "SaveGym", shared.ErrAlreadyExists, "gym code "+g.Abv+" is taken", err)
		}
		if cerr := checkViolation("climbing", "SaveGym", err); cerr != nil {
			return cerr
		}
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
		INSERT INTO climbers (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	if _, err := s.conn.Exec(ctx, query, string(id), name); err != nil {
		return fmt.Errorf("failed to save climber: %w", err)
	}
	return nil
}

// ListClimbers returns every climber id.
func (s *Store) ListClimbers(ctx context.Context) ([]shared.ClimberID, error) {
	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) ([]shared.ClimberID, error) {
		rows, err := s.conn.Query(ctx, `SELECT id FROM climbers ORDER BY id`)
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
	})
}

// Thresholds returns the climber's bands per gym.
func (s *Store) Thresholds(ctx context.Context, climber shared.ClimberID) (climbing.Thresholds, error) {
	query := `SELECT gym_id, positions FROM climber_thresholds WHERE climber_id = $1`

	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (climbing.Thresholds, error) {
		rows, err := s.conn.Query(ctx, query, string(climber))
		if err != nil {
			return nil, fmt.Errorf("failed to get thresholds: %w", err)
		}
		defer rows.Close()

		out := make(climbing.Thresholds)
		for rows.Next() {
			var (
				gymID     string
				positions []int32
			)
			if err := rows.Scan(&gymID, &positions); err != nil {
				return nil, fmt.Errorf("failed to scan thresholds: %w", err)
			}
			ints := make([]int, len(positions))
			for i, p := range positions {
				ints[i] = int(p)
			}
			band, err := climbing.NewThresholdBand(ints...)
			if err != nil {
				return nil, fmt.Errorf("gym %s: %w", gymID, err)
			}
			out[shared.GymID(gymID)] = band
		}
		return out, rows.Err()
	})
}

// SetThresholds stores the climber's band for a gym.
func (s *Store) SetThresholds(ctx context.Context, climber shared.ClimberID, gym shared.GymID, band climbing.ThresholdBand) error {
	if band.IsZero() {
		return shared.ErrInvalidThresholdBand
	}
	positions := make([]int32, 0, len(band.Positions()))
	for _, p := range band.Positions() {
		positions = append(positions, int32(p))
	}
	query := `
		INSERT INTO climber_thresholds (climber_id, gym_id, positions) VALUES ($1, $2, $3)
		ON CONFLICT (climber_id, gym_id) DO UPDATE SET positions = EXCLUDED.positions
	`
	if _, err := s.conn.Exec(ctx, query, string(climber), string(gym), positions); err != nil {
		if IsForeignKeyViolation(err) {
			return shared.WrapError("climbing", "SetThresholds", shared.ErrIntegrity, "unknown climber or gym", err)
		}
		if cerr := checkViolation("climbing", "SetThresholds", err); cerr != nil {
			return cerr
		}
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

	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) ([]*climbing.Problem, error) {
		rows, err := s.conn.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to find problems: %w", err)
		}
		defer rows.Close()

		var (
			problems []*climbing.Problem
			ids      []string
			byID     = make(map[shared.ProblemID]*climbing.Problem)
		)
		for rows.Next() {
			var (
				p       climbing.Problem
				id      string
				addedOn *time.Time
				gymID   string
				kind    string
			)
			if err := rows.Scan(&id, &p.Grade, &p.SectorID, &p.Removed, &addedOn,
				&gymID, &p.Gym.Abv, &p.Gym.Brand, &p.Gym.Name, &p.Gym.City, &kind); err != nil {
				return nil, fmt.Errorf("failed to scan problem: %w", err)
			}
			p.ID = shared.ProblemID(id)
			p.Gym.ID = shared.GymID(gymID)
			p.Gym.Kind = climbing.GymKind(kind)
			if addedOn != nil {
				p.AddedOn = addedOn.UTC()
			}
			problems = append(problems, &p)
			ids = append(ids, id)
			byID[p.ID] = &p
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		if err := s.loadAttributes(ctx, ids, byID); err != nil {
			return nil, err
		}
		return problems, nil
	})
}

func (s *Store) loadAttributes(ctx context.Context, ids []string, byID map[shared.ProblemID]*climbing.Problem) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		SELECT pa.problem_id, a.category, a.name, a.description, a.image
		FROM problem_attributes pa
		JOIN attributes a ON a.id = pa.attribute_id
		WHERE pa.problem_id = ANY($1)
		ORDER BY pa.problem_id, a.category, a.name
	`
	rows, err := s.conn.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load attributes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			problemID, category string
			a                   climbing.Attribute
		)
		if err := rows.Scan(&problemID, &category, &a.Name, &a.Description, &a.Image); err != nil {
			return fmt.Errorf("failed to scan attribute: %w", err)
		}
		a.Category = climbing.Category(category)
		if p, ok := byID[shared.ProblemID(problemID)]; ok {
			p.Attributes = append(p.Attributes, a)
		}
	}
	return rows.Err()
}

// SaveProblem inserts or updates a problem and replaces its attributes.
func (s *Store) SaveProblem(ctx context.Context, p *climbing.Problem) error {
	for _, a := range p.Attributes {
		if !a.Category.IsValid() {
			return shared.NewDomainError("climbing", "SaveProblem", shared.ErrInvalidInput, "unknown attribute category: "+string(a.Category))
		}
	}

	var addedOn *time.Time
	if !p.AddedOn.IsZero() {
		addedOn = &p.AddedOn
	}

	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO problems (id, gym_id, sector_id, grade, removed, added_on)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				gym_id = EXCLUDED.gym_id,
				sector_id = EXCLUDED.sector_id,
				grade = EXCLUDED.grade,
				removed = EXCLUDED.removed,
				added_on = EXCLUDED.added_on
		`
		if _, err := tx.Exec(ctx, query, string(p.ID), string(p.Gym.ID), p.SectorID, p.Grade, p.Removed, addedOn); err != nil {
			if IsForeignKeyViolation(err) {
				return shared.WrapError("climbing", "SaveProblem", shared.ErrIntegrity, "unknown gym "+string(p.Gym.ID), err)
			}
			if cerr := checkViolation("climbing", "SaveProblem", err); cerr != nil {
				return cerr
			}
			return fmt.Errorf("failed to save problem %s: %w", p.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM problem_attributes WHERE problem_id = $1`, string(p.ID)); err != nil {
			return fmt.Errorf("failed to clear attributes: %w", err)
		}

		for _, a := range p.Attributes {
			var attributeID int
			err := tx.QueryRow(ctx, `
				INSERT INTO attributes (category, name, description, image) VALUES ($1, $2, $3, $4)
				ON CONFLICT (category, name) DO UPDATE SET
					description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE attributes.description END,
					image = CASE WHEN EXCLUDED.image <> '' THEN EXCLUDED.image ELSE attributes.image END
				RETURNING id
			`, string(a.Category), a.Key(), a.Description, a.Image).Scan(&attributeID)
			if err != nil {
				return fmt.Errorf("failed to save attribute %s: %w", a.Key(), err)
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO problem_attributes (problem_id, attribute_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, string(p.ID), attributeID); err != nil {
				return fmt.Errorf("failed to link attribute: %w", err)
			}
		}
		return nil
	})
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

	sessionsQuery := `
		SELECT s.id, s.date, s.duration, ` + gymColumns + `
		FROM sessions s
		JOIN gyms g ON g.id = s.gym_id
		WHERE ` + where + `
		ORDER BY s.date, s.id
	`
	attemptsQuery := `
		SELECT a.id, a.session_id, a.problem_id, a.kind, a.attempts
		FROM attempts a
		JOIN sessions s ON s.id = a.session_id
		WHERE ` + where + `
		ORDER BY a.seq
	`

	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) ([]*climbing.Session, error) {
		rows, err := s.conn.Query(ctx, sessionsQuery, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to find sessions: %w", err)
		}

		var (
			sessions []*climbing.Session
			byID     = make(map[shared.SessionID]*climbing.Session)
		)
		for rows.Next() {
			sess := &climbing.Session{ClimberID: climber}
			var id, gymID, kind string
			if err := rows.Scan(&id, &sess.Date, &sess.Duration,
				&gymID, &sess.Gym.Abv, &sess.Gym.Brand, &sess.Gym.Name, &sess.Gym.City, &kind); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan session: %w", err)
			}
			sess.ID = shared.SessionID(id)
			sess.Date = sess.Date.UTC()
			sess.Gym.ID = shared.GymID(gymID)
			sess.Gym.Kind = climbing.GymKind(kind)
			sessions = append(sessions, sess)
			byID[sess.ID] = sess
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		attempts, err := s.conn.Query(ctx, attemptsQuery, args...)
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
			if sess, ok := byID[shared.SessionID(sessionID)]; ok {
				if err := sess.Add(a); err != nil {
					return nil, fmt.Errorf("session %s: %w", sessionID, err)
				}
			}
		}
		return sessions, attempts.Err()
	})
}

// SaveSession inserts or updates a session and replaces its records.
func (s *Store) SaveSession(ctx context.Context, sess *climbing.Session) error {
	records := sess.Records()
	for _, a := range records {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO sessions (id, climber_id, gym_id, date, duration)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				climber_id = EXCLUDED.climber_id,
				gym_id = EXCLUDED.gym_id,
				date = EXCLUDED.date,
				duration = EXCLUDED.duration
		`
		if _, err := tx.Exec(ctx, query, string(sess.ID), string(sess.ClimberID), string(sess.Gym.ID), sess.Date, sess.Duration); err != nil {
			if IsForeignKeyViolation(err) {
				return shared.WrapError("climbing", "SaveSession", shared.ErrIntegrity, "unknown climber or gym", err)
			}
			if cerr := checkViolation("climbing", "SaveSession", err); cerr != nil {
				return cerr
			}
			return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM attempts WHERE session_id = $1`, string(sess.ID)); err != nil {
			return fmt.Errorf("failed to clear attempts: %w", err)
		}

		batch := &pgx.Batch{}
		for _, a := range records {
			id := a.ID
			if id == "" {
				id = uuid.NewString()
			}
			batch.Queue(`INSERT INTO attempts (id, session_id, problem_id, kind, attempts) VALUES ($1, $2, $3, $4, $5)`,
				id, string(sess.ID), string(a.ProblemID), string(a.Kind), a.Attempts)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if IsForeignKeyViolation(err) {
				return shared.WrapError("climbing", "SaveSession", shared.ErrIntegrity, "attempt references an unknown problem", err)
			}
			if cerr := checkViolation("climbing", "SaveSession", err); cerr != nil {
				return cerr
			}
			return fmt.Errorf("failed to save attempts: %w", err)
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
		WHERE s.climber_id = $1 AND a.problem_id = $2 AND a.kind = $3 AND s.date < $4::date
	`
	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (int, error) {
		var n int
		if err := s.conn.QueryRow(ctx, query, string(climber), string(problem), string(kind), before).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count attempts: %w", err)
		}
		return n, nil
	})
}

// BestLevels returns the best level ever reached on each tried problem.
func (s *Store) BestLevels(ctx context.Context, climber shared.ClimberID) (map[shared.ProblemID]climbing.Level, error) {
	query := `
		SELECT a.problem_id,
			max(CASE a.kind WHEN 'top' THEN 2 WHEN 'zone' THEN 1 ELSE 0 END)
		FROM attempts a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.climber_id = $1
		GROUP BY a.problem_id
	`
	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (map[shared.ProblemID]climbing.Level, error) {
		rows, err := s.conn.Query(ctx, query, string(climber))
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
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper Functions
// ─────────────────────────────────────────────────────────────────────────────

func scanGym(row pgx.Row) (*climbing.Gym, error) {
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

// params collects positional arguments.
type params []any

func (p *params) add(v any) string {
	*p = append(*p, v)
	return fmt.Sprintf("$%d", len(*p))
}

// predicateSQL translates a predicate into a WHERE clause over problems p
// joined with gyms g. Value lists bind as text arrays.
func predicateSQL(pred climbing.ProblemPredicate) (string, []any) {
	var (
		clauses []string
		args    params
	)
	anyOf := func(column string, values []string) string {
		if len(values) == 0 {
			return "FALSE"
		}
		return column + " = ANY(" + args.add(values) + "::text[])"
	}
	tagExists := func(category string, names []string) string {
		return `EXISTS (
			SELECT 1 FROM problem_attributes pa
			JOIN attributes a ON a.id = pa.attribute_id
			WHERE pa.problem_id = p.id AND a.category = ` + args.add(category) + ` AND ` + anyOf("a.name", names) + `)`
	}

	for _, c := range pred.AnyOf {
		switch c.Field {
		case climbing.FieldGrade:
			clauses = append(clauses, anyOf("lower(trim(p.grade))", c.Values))
		case climbing.FieldGym:
			clauses = append(clauses, anyOf("lower(g.abv)", c.Values))
		case climbing.FieldType:
			clauses = append(clauses, tagExists(string(climbing.CategoryWallType), c.Values))
		}
	}
	for _, t := range pred.Tags {
		clauses = append(clauses, tagExists(string(t.Category), t.Names))
	}
	if pred.Removed != nil {
		clauses = append(clauses, "p.removed = "+args.add(*pred.Removed))
	}
	if pred.IDs != nil {
		ids := make([]string, 0, len(pred.IDs))
		for _, id := range pred.IDs {
			ids = append(ids, string(id))
		}
		clauses = append(clauses, anyOf("p.id", ids))
	}

	if len(clauses) == 0 {
		return "TRUE", args
	}
	return strings.Join(clauses, " AND "), args
}

func windowSQL(climber shared.ClimberID, window shared.DateRange) (string, []any) {
	var args params
	clauses := []string{"s.climber_id = " + args.add(string(climber))}
	if !window.From.IsZero() {
		clauses = append(clauses, "s.date >= "+args.add(window.From)+"::date")
	}
	if !window.To.IsZero() {
		clauses = append(clauses, "s.date < "+args.add(window.To)+"::date")
	}
	return strings.Join(clauses, " AND "), args
}

// checkViolation turns a rejected CHECK constraint into an invalid input
// error naming the constraint. Any other error gives nil.
func checkViolation(domain, op string, err error) error {
	if !IsCheckViolation(err) {
		return nil
	}
	var pgErr *pgconn.PgError
	errors.As(err, &pgErr)
	return shared.WrapError(domain, op, shared.ErrInvalidInput, "violates "+pgErr.ConstraintName, err)
}
