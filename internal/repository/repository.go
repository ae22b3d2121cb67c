package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"classdeck/roster/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, databaseURL)
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate bootstraps the schema. Each class carries its own sequence-number
// counter; issued numbers are never handed out again, even after the student
// that held one is deleted or moved to another class.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS class_groups (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			description text NOT NULL DEFAULT '',
			next_sequence_no bigint NOT NULL DEFAULT 1,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL
		)`,
		`ALTER TABLE class_groups ADD COLUMN IF NOT EXISTS next_sequence_no bigint NOT NULL DEFAULT 1`,
		`CREATE TABLE IF NOT EXISTS students (
			id uuid PRIMARY KEY,
			class_id uuid REFERENCES class_groups (id) ON DELETE SET NULL,
			name text NOT NULL,
			sequence_no bigint,
			reading_score double precision NOT NULL DEFAULT 0,
			writing_score double precision NOT NULL DEFAULT 0,
			math_score double precision NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL,
			UNIQUE (class_id, sequence_no)
		)`,
		`CREATE TABLE IF NOT EXISTS class_sessions (
			id uuid PRIMARY KEY,
			class_id uuid NOT NULL REFERENCES class_groups (id) ON DELETE CASCADE,
			title text NOT NULL,
			media_url text,
			summary text,
			held_at timestamptz NOT NULL,
			created_at timestamptz NOT NULL
		)`,
		// Advance counters past numbers issued before the column existed.
		`UPDATE class_groups c
		SET next_sequence_no = x.max_no + 1
		FROM (
			SELECT class_id, MAX(sequence_no) AS max_no
			FROM students
			WHERE class_id IS NOT NULL AND sequence_no IS NOT NULL
			GROUP BY class_id
		) x
		WHERE c.id = x.class_id AND c.next_sequence_no <= x.max_no`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Classes

func (s *Store) CreateClass(ctx context.Context, class model.ClassGroup) (model.ClassGroup, error) {
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO class_groups (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, class.ID, class.Name, class.Description, class.CreatedAt, class.UpdatedAt)
	return class, err
}

func (s *Store) ListClasses(ctx context.Context) ([]model.ClassGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM class_groups
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.ClassGroup
	for rows.Next() {
		var class model.ClassGroup
		if err := rows.Scan(&class.ID, &class.Name, &class.Description, &class.CreatedAt, &class.UpdatedAt); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

func (s *Store) GetClass(ctx context.Context, classID string) (model.ClassGroup, error) {
	if _, err := uuid.Parse(classID); err != nil {
		return model.ClassGroup{}, pgx.ErrNoRows
	}
	var class model.ClassGroup
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM class_groups
		WHERE id = $1
	`, classID)
	err := row.Scan(&class.ID, &class.Name, &class.Description, &class.CreatedAt, &class.UpdatedAt)
	return class, err
}

func (s *Store) UpdateClass(ctx context.Context, class model.ClassGroup) (model.ClassGroup, error) {
	class.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE class_groups
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4
	`, class.Name, class.Description, class.UpdatedAt, class.ID)
	return class, err
}

func (s *Store) DeleteClass(ctx context.Context, classID string) error {
	if _, err := uuid.Parse(classID); err != nil {
		return pgx.ErrNoRows
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM class_groups WHERE id = $1`, classID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Students

// CreateStudent inserts the student and, when it joins a class without a
// sequence number, draws the next number from the class counter in the same
// transaction.
func (s *Store) CreateStudent(ctx context.Context, student model.Student) (model.Student, error) {
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Student{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if student.ClassID != nil && student.SequenceNo == nil {
		next, err := nextSequenceNo(ctx, tx, *student.ClassID)
		if err != nil {
			return model.Student{}, err
		}
		student.SequenceNo = &next
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO students (id, class_id, name, sequence_no, reading_score, writing_score, math_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, student.ID, student.ClassID, student.Name, student.SequenceNo,
		student.ReadingScore, student.WritingScore, student.MathScore,
		student.CreatedAt, student.UpdatedAt)
	if err != nil {
		return model.Student{}, err
	}
	return student, tx.Commit(ctx)
}

// SaveStudent writes an updated student back. The same lazy rule applies:
// attached to a class with no sequence number means one gets assigned here.
func (s *Store) SaveStudent(ctx context.Context, student model.Student) (model.Student, error) {
	student.UpdatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Student{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if student.ClassID != nil && student.SequenceNo == nil {
		next, err := nextSequenceNo(ctx, tx, *student.ClassID)
		if err != nil {
			return model.Student{}, err
		}
		student.SequenceNo = &next
	}

	_, err = tx.Exec(ctx, `
		UPDATE students
		SET class_id = $1, name = $2, sequence_no = $3, reading_score = $4, writing_score = $5, math_score = $6, updated_at = $7
		WHERE id = $8
	`, student.ClassID, student.Name, student.SequenceNo,
		student.ReadingScore, student.WritingScore, student.MathScore,
		student.UpdatedAt, student.ID)
	if err != nil {
		return model.Student{}, err
	}
	return student, tx.Commit(ctx)
}

// nextSequenceNo draws from the class counter. The UPDATE locks the class
// row, so concurrent assignments serialize, and the counter never moves
// backwards when students are deleted or reassigned.
func nextSequenceNo(ctx context.Context, tx pgx.Tx, classID string) (int64, error) {
	var next int64
	err := tx.QueryRow(ctx, `
		UPDATE class_groups
		SET next_sequence_no = next_sequence_no + 1
		WHERE id = $1
		RETURNING next_sequence_no - 1
	`, classID).Scan(&next)
	return next, err
}

func (s *Store) ListStudentsByClass(ctx context.Context, classID string) ([]model.Student, error) {
	if _, err := uuid.Parse(classID); err != nil {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, class_id, name, sequence_no, reading_score, writing_score, math_score, created_at, updated_at
		FROM students
		WHERE class_id = $1
		ORDER BY sequence_no NULLS LAST, created_at, id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}
	return students, rows.Err()
}

// GetStudent tolerates identifiers that are not well formed: the resolver
// probes it with partially parsed remainders.
func (s *Store) GetStudent(ctx context.Context, studentID string) (model.Student, error) {
	if _, err := uuid.Parse(studentID); err != nil {
		return model.Student{}, pgx.ErrNoRows
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, class_id, name, sequence_no, reading_score, writing_score, math_score, created_at, updated_at
		FROM students
		WHERE id = $1
	`, studentID)
	return scanStudent(row)
}

func (s *Store) DeleteStudent(ctx context.Context, studentID string) error {
	if _, err := uuid.Parse(studentID); err != nil {
		return pgx.ErrNoRows
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, studentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// BackfillSequenceNumbers assigns numbers to students that joined a class
// before the lazy assignment ran, drawing from each class counter and
// bumping it past the highest number issued.
func (s *Store) BackfillSequenceNumbers(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH numbered AS (
			SELECT s.id, s.class_id,
			       c.next_sequence_no - 1 + ROW_NUMBER() OVER (PARTITION BY s.class_id ORDER BY s.created_at, s.id) AS seq
			FROM students s
			JOIN class_groups c ON c.id = s.class_id
			WHERE s.sequence_no IS NULL
		), bumped AS (
			UPDATE class_groups c
			SET next_sequence_no = x.top + 1
			FROM (SELECT class_id, MAX(seq) AS top FROM numbered GROUP BY class_id) x
			WHERE c.id = x.class_id
		)
		UPDATE students s
		SET sequence_no = n.seq, updated_at = now()
		FROM numbered n
		WHERE s.id = n.id
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Sessions

func (s *Store) CreateSession(ctx context.Context, session model.Session) (model.Session, error) {
	session.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO class_sessions (id, class_id, title, media_url, summary, held_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.ClassID, session.Title, session.MediaURL, session.Summary, session.HeldAt, session.CreatedAt)
	return session, err
}

func (s *Store) ListSessionsByClass(ctx context.Context, classID string) ([]model.Session, error) {
	if _, err := uuid.Parse(classID); err != nil {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, class_id, title, media_url, summary, held_at, created_at
		FROM class_sessions
		WHERE class_id = $1
		ORDER BY held_at DESC, id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var session model.Session
		if err := rows.Scan(&session.ID, &session.ClassID, &session.Title, &session.MediaURL, &session.Summary, &session.HeldAt, &session.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return model.Session{}, pgx.ErrNoRows
	}
	var session model.Session
	row := s.pool.QueryRow(ctx, `
		SELECT id, class_id, title, media_url, summary, held_at, created_at
		FROM class_sessions
		WHERE id = $1
	`, sessionID)
	err := row.Scan(&session.ID, &session.ClassID, &session.Title, &session.MediaURL, &session.Summary, &session.HeldAt, &session.CreatedAt)
	return session, err
}

func (s *Store) SetSessionSummary(ctx context.Context, sessionID, summary string) error {
	_, err := s.pool.Exec(ctx, `UPDATE class_sessions SET summary = $1 WHERE id = $2`, summary, sessionID)
	return err
}

func scanStudent(row pgx.Row) (model.Student, error) {
	var student model.Student
	err := row.Scan(
		&student.ID,
		&student.ClassID,
		&student.Name,
		&student.SequenceNo,
		&student.ReadingScore,
		&student.WritingScore,
		&student.MathScore,
		&student.CreatedAt,
		&student.UpdatedAt,
	)
	return student, err
}
