package gradebook

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gradebook/core"
)

// Course is the aggregate root: it owns Enrollments and Assignments.
// Instructor is the email identifying the course owner; it is compared
// for equality during authorization.
type Course struct {
	ID         string    `json:"id" db:"id"`
	Instructor string    `json:"instructor" db:"instructor"`
	Title      string    `json:"title" db:"title"`
	Semester   string    `json:"semester" db:"semester"`
	Year       int       `json:"year" db:"year"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// Enrollment links a Course to a student. At most one per (course, student).
type Enrollment struct {
	ID           string    `json:"id" db:"id"`
	CourseID     string    `json:"course_id" db:"course_id"`
	StudentEmail string    `json:"student_email" db:"student_email"`
	StudentName  string    `json:"student_name" db:"student_name"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Assignment belongs to one Course. NeedsGrading keeps it on the instructor's
// worklist; it also gates deletion.
// Course is populated (joined) when the assignment is loaded by ID so that
// authorization needs a single lookup.
type Assignment struct {
	ID           string    `json:"id" db:"id"`
	CourseID     string    `json:"course_id" db:"course_id"`
	Name         string    `json:"name" db:"name"`
	DueDate      time.Time `json:"due_date" db:"due_date"`
	NeedsGrading bool      `json:"needs_grading" db:"needs_grading"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	Course Course `json:"course" db:"course"`
}

// Grade links one Assignment to one Enrollment; at most one per pair.
// It is created lazily (with an unset Score) the first time the roster is
// viewed, then mutated in place by score updates.
// StudentEmail and StudentName are joined from the Enrollment on load.
type Grade struct {
	ID           string    `json:"id" db:"id"`
	AssignmentID string    `json:"assignment_id" db:"assignment_id"`
	EnrollmentID string    `json:"enrollment_id" db:"enrollment_id"`
	Score        Score     `json:"score" db:"score"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	StudentEmail string `json:"student_email" db:"student_email"`
	StudentName  string `json:"student_name" db:"student_name"`
}

// Roster is the per-assignment list of student grades used for viewing and
// editing scores.
type Roster struct {
	AssignmentID   string        `json:"assignment_id"`
	AssignmentName string        `json:"assignment_name"`
	Grades         []RosterEntry `json:"grades"`
}

type RosterEntry struct {
	GradeID      string `json:"grade_id"`
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	Score        Score  `json:"score"`
}

// FinalGrade is a computation result forwarded downstream, never persisted.
type FinalGrade struct {
	StudentEmail string `json:"student_email"`
	StudentName  string `json:"student_name"`
	LetterGrade  string `json:"grade"`
}

// NewCourse contains information needed to register a new Course.
type NewCourse struct {
	Instructor string `json:"instructor" validate:"required,email"`
	Title      string `json:"title" validate:"required"`
	Semester   string `json:"semester" validate:"required,semester"`
	Year       int    `json:"year" validate:"required,min=2000"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Instructor = core.CleanString(nc.Instructor, true /* lower */)
	nc.Title = core.CleanString(nc.Title)
	nc.Semester = core.CleanString(nc.Semester)
	return validate.Struct(nc)
}

// NewEnrollment contains information needed to enroll a student in a Course.
type NewEnrollment struct {
	CourseID     string `json:"course_id" validate:"required"`
	StudentEmail string `json:"student_email" validate:"required,email"`
	StudentName  string `json:"student_name" validate:"required"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.StudentEmail = core.CleanString(ne.StudentEmail, true /* lower */)
	ne.StudentName = core.CleanString(ne.StudentName)
	return validate.Struct(ne)
}

// NewAssignment contains information needed to create a new Assignment.
type NewAssignment struct {
	CourseID string    `json:"course_id" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	DueDate  time.Time `json:"due_date" validate:"required"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	return validate.Struct(na)
}

// UpdateAssignment defines what may be modified on an existing Assignment.
type UpdateAssignment struct {
	Name string `json:"name" validate:"required"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	ua.Name = core.CleanString(ua.Name)
	return validate.Struct(ua)
}

// RosterUpdate is a batch of score edits for one assignment.
// Score format is deliberately not validated here: an instructor may store
// intermediate notes; scores are only parsed at final grade computation.
type RosterUpdate struct {
	Grades []RosterEdit `json:"grades" validate:"required,min=1,dive"`
}

type RosterEdit struct {
	GradeID string `json:"grade_id" validate:"required"`
	Score   Score  `json:"score"`
}

func (ru *RosterUpdate) Validate(validate *validator.Validate) error {
	return validate.Struct(ru)
}
