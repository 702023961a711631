package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

const (
	pqUniqueViolation = "23505"

	courseCols = `id, instructor, title, semester, year, created_at, updated_at`

	assignmentCols = `a.id, a.course_id, a.name, a.due_date, a.needs_grading, a.created_at, a.updated_at,
		c.id AS "course.id", c.instructor AS "course.instructor", c.title AS "course.title",
		c.semester AS "course.semester", c.year AS "course.year",
		c.created_at AS "course.created_at", c.updated_at AS "course.updated_at"`

	gradeCols = `g.id, g.assignment_id, g.enrollment_id, g.score, g.created_at, g.updated_at,
		e.student_email, e.student_name`
)

// orderable assignment fields exposed to clients
var assignmentOrderFields = map[string]string{
	"name":       "a.name",
	"due_date":   "a.due_date",
	"created_at": "a.created_at",
}

type gradebookRepository struct {
	db *sqlx.DB
}

var _ gradebook.Repository = (*gradebookRepository)(nil) // interface compliance check

func NewGradebookRepository(db *sqlx.DB) *gradebookRepository {
	return &gradebookRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to the domain's not-found sentinel
func (repo gradebookRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo gradebookRepository) isUniqueViolation(err error) bool {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

func (repo gradebookRepository) CreateCourse(ctx context.Context, crs gradebook.Course) (gradebook.Course, error) {
	crs.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO course (id, instructor, title, semester, year, created_at, updated_at)
		VALUES (:id, :instructor, :title, :semester, :year, :created_at, :updated_at)`, crs)
	if err != nil {
		return gradebook.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo gradebookRepository) GetCourseByID(ctx context.Context, id string) (gradebook.Course, error) {
	var crs gradebook.Course
	err := repo.db.GetContext(ctx, &crs, `SELECT `+courseCols+` FROM course WHERE id = $1`, id)
	if err != nil {
		return gradebook.Course{}, repo.trapNoRowsErr(err, gradebook.ErrCourseNotFound, "getting course")
	}
	return crs, nil
}

func (repo gradebookRepository) QueryInstructorCourses(ctx context.Context, instructor string) ([]gradebook.Course, error) {
	var courses []gradebook.Course
	err := repo.db.SelectContext(ctx, &courses, `
		SELECT `+courseCols+` FROM course WHERE instructor = $1 ORDER BY year DESC, created_at`, instructor)
	if err != nil {
		return nil, errors.Wrap(err, "querying instructor courses")
	}
	return courses, nil
}

func (repo gradebookRepository) CreateEnrollment(ctx context.Context, enr gradebook.Enrollment) (gradebook.Enrollment, error) {
	enr.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO enrollment (id, course_id, student_email, student_name, created_at, updated_at)
		VALUES (:id, :course_id, :student_email, :student_name, :created_at, :updated_at)`, enr)
	if err != nil {
		if repo.isUniqueViolation(err) {
			return gradebook.Enrollment{}, gradebook.ErrEnrollmentExists
		}
		return gradebook.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo gradebookRepository) QueryCourseEnrollments(ctx context.Context, courseID string) ([]gradebook.Enrollment, error) {
	var enrs []gradebook.Enrollment
	err := repo.db.SelectContext(ctx, &enrs, `
		SELECT id, course_id, student_email, student_name, created_at, updated_at
		FROM enrollment WHERE course_id = $1 ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return enrs, nil
}

func (repo gradebookRepository) CreateAssignment(ctx context.Context, a gradebook.Assignment) (gradebook.Assignment, error) {
	a.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO assignment (id, course_id, name, due_date, needs_grading, created_at, updated_at)
		VALUES (:id, :course_id, :name, :due_date, :needs_grading, :created_at, :updated_at)`, a)
	if err != nil {
		return gradebook.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return repo.GetAssignmentByID(ctx, a.ID)
}

func (repo gradebookRepository) GetAssignmentByID(ctx context.Context, id string) (gradebook.Assignment, error) {
	var a gradebook.Assignment
	err := repo.db.GetContext(ctx, &a, `
		SELECT `+assignmentCols+`
		FROM assignment a JOIN course c ON c.id = a.course_id
		WHERE a.id = $1`, id)
	if err != nil {
		return gradebook.Assignment{}, repo.trapNoRowsErr(err, gradebook.ErrAssignmentNotFound, "getting assignment")
	}
	return a, nil
}

func (repo gradebookRepository) QueryAssignmentsNeedingGrading(ctx context.Context, instructor string, ordering ...core.DBOrdering) ([]gradebook.Assignment, error) {
	orderBy := "a.due_date, a.created_at"
	if clauses := orderClauses(ordering, assignmentOrderFields); len(clauses) > 0 {
		orderBy = strings.Join(clauses, ", ")
	}

	var assignments []gradebook.Assignment
	err := repo.db.SelectContext(ctx, &assignments, `
		SELECT `+assignmentCols+`
		FROM assignment a JOIN course c ON c.id = a.course_id
		WHERE c.instructor = $1 AND a.needs_grading
		ORDER BY `+orderBy, instructor)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments needing grading")
	}
	return assignments, nil
}

func (repo gradebookRepository) UpdateAssignment(ctx context.Context, a gradebook.Assignment) (gradebook.Assignment, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE assignment
		SET name = :name, due_date = :due_date, needs_grading = :needs_grading, updated_at = :updated_at
		WHERE id = :id`, a)
	if err != nil {
		return gradebook.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gradebook.Assignment{}, gradebook.ErrAssignmentNotFound
	}
	return repo.GetAssignmentByID(ctx, a.ID)
}

func (repo gradebookRepository) DeleteAssignment(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assignment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gradebook.ErrAssignmentNotFound
	}
	return nil
}

// EnsureGrade inserts the grade for (assignment, enrollment) unless one
// already exists; the unique constraint makes the check-then-insert atomic
// under concurrent roster materializations.
func (repo gradebookRepository) EnsureGrade(ctx context.Context, g gradebook.Grade) (gradebook.Grade, error) {
	g.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO assignment_grade (id, assignment_id, enrollment_id, score, created_at, updated_at)
		VALUES (:id, :assignment_id, :enrollment_id, :score, :created_at, :updated_at)
		ON CONFLICT (assignment_id, enrollment_id) DO NOTHING`, g)
	if err != nil {
		return gradebook.Grade{}, errors.Wrap(err, "inserting grade")
	}
	return repo.GetGrade(ctx, g.AssignmentID, g.EnrollmentID)
}

func (repo gradebookRepository) GetGrade(ctx context.Context, assignmentID, enrollmentID string) (gradebook.Grade, error) {
	var g gradebook.Grade
	err := repo.db.GetContext(ctx, &g, `
		SELECT `+gradeCols+`
		FROM assignment_grade g JOIN enrollment e ON e.id = g.enrollment_id
		WHERE g.assignment_id = $1 AND g.enrollment_id = $2`, assignmentID, enrollmentID)
	if err != nil {
		return gradebook.Grade{}, repo.trapNoRowsErr(err, gradebook.ErrGradeNotFound, "getting grade")
	}
	return g, nil
}

func (repo gradebookRepository) GetGradeByID(ctx context.Context, id string) (gradebook.Grade, error) {
	var g gradebook.Grade
	err := repo.db.GetContext(ctx, &g, `
		SELECT `+gradeCols+`
		FROM assignment_grade g JOIN enrollment e ON e.id = g.enrollment_id
		WHERE g.id = $1`, id)
	if err != nil {
		return gradebook.Grade{}, repo.trapNoRowsErr(err, gradebook.ErrGradeNotFound, "getting grade")
	}
	return g, nil
}

func (repo gradebookRepository) QueryEnrollmentGrades(ctx context.Context, enrollmentID string) ([]gradebook.Grade, error) {
	var grades []gradebook.Grade
	err := repo.db.SelectContext(ctx, &grades, `
		SELECT `+gradeCols+`
		FROM assignment_grade g JOIN enrollment e ON e.id = g.enrollment_id
		WHERE g.enrollment_id = $1 ORDER BY g.created_at, g.id`, enrollmentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollment grades")
	}
	return grades, nil
}

func (repo gradebookRepository) AssignmentHasScores(ctx context.Context, assignmentID string) (bool, error) {
	var hasScores bool
	err := repo.db.GetContext(ctx, &hasScores, `
		SELECT EXISTS (
			SELECT 1 FROM assignment_grade
			WHERE assignment_id = $1 AND score IS NOT NULL AND btrim(score) <> ''
		)`, assignmentID)
	if err != nil {
		return false, errors.Wrap(err, "checking assignment scores")
	}
	return hasScores, nil
}

// UpdateGradeScores applies all edits in one transaction; a grade ID that is
// unknown or owned by another assignment rolls the whole batch back.
func (repo gradebookRepository) UpdateGradeScores(ctx context.Context, assignmentID string, edits []gradebook.RosterEdit) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, edit := range edits {
		res, err := tx.ExecContext(ctx, `
			UPDATE assignment_grade SET score = $1, updated_at = now()
			WHERE id = $2 AND assignment_id = $3`,
			edit.Score, edit.GradeID, assignmentID)
		if err != nil {
			return errors.Wrap(err, "updating grade score")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrapf(gradebook.ErrGradeNotFound, "id %s", edit.GradeID)
		}
	}
	return errors.Wrap(tx.Commit(), "committing grade scores")
}

func orderClauses(ordering []core.DBOrdering, allowed map[string]string) []string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		ord.Field = col
		clauses = append(clauses, ord.String())
	}
	return clauses
}
