package gradebook

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

var (
	// errors
	ErrCourseNotFound     = errors.New("course not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrGradeNotFound      = errors.New("grade record not found")
	ErrEnrollmentExists   = errors.New("student already enrolled in this course")
	ErrNotInstructor      = errors.New("not the course instructor")
	ErrAlreadyGraded      = errors.New("assignment already graded")
	ErrInvalidScore       = errors.New("invalid score")
	ErrNoGradedWork       = errors.New("no graded assignments")
	ErrSubmissionFailed   = errors.New("final grade submission failed")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		QueryInstructorCourses(ctx context.Context, instructor string) ([]Course, error)

		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		// QueryCourseEnrollments returns a course's enrollments in persisted order.
		QueryCourseEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)

		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// GetAssignmentByID loads the assignment with its Course joined in.
		GetAssignmentByID(ctx context.Context, id string) (Assignment, error)
		QueryAssignmentsNeedingGrading(ctx context.Context, instructor string, ordering ...core.DBOrdering) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string) error

		// EnsureGrade creates the grade for (AssignmentID, EnrollmentID) if it
		// does not exist yet and returns the stored grade either way. The
		// check-then-insert must be atomic: concurrent calls for the same pair
		// must never produce duplicates.
		EnsureGrade(ctx context.Context, g Grade) (Grade, error)
		GetGrade(ctx context.Context, assignmentID, enrollmentID string) (Grade, error)
		GetGradeByID(ctx context.Context, id string) (Grade, error)
		QueryEnrollmentGrades(ctx context.Context, enrollmentID string) ([]Grade, error)
		// AssignmentHasScores reports whether any non-blank score has been
		// entered for the assignment.
		AssignmentHasScores(ctx context.Context, assignmentID string) (bool, error)
		// UpdateGradeScores overwrites scores as one atomic unit, scoped to the
		// assignment: if any grade ID does not exist or belongs to another
		// assignment, no edit is applied and ErrGradeNotFound is returned.
		UpdateGradeScores(ctx context.Context, assignmentID string, edits []RosterEdit) error
	}

	// RegistrationService delivers computed final grades for a course to the
	// external registration system as one unit. Delivery is at-most-once: a
	// failed or timed out call is reported to the caller, never retried here.
	RegistrationService interface {
		SendFinalGrades(ctx context.Context, courseID string, grades []FinalGrade) error
	}

	Service interface {
		CreateCourse(ctx context.Context, nc NewCourse) (Course, error)
		EnrollStudent(ctx context.Context, ne NewEnrollment) (Enrollment, error)
		QueryInstructorCourses(ctx context.Context, instructor string) ([]Course, error)

		QueryGradeableAssignments(ctx context.Context, instructor string, ordering ...core.DBOrdering) ([]Assignment, error)
		CreateAssignment(ctx context.Context, instructor string, na NewAssignment) (Assignment, error)
		RenameAssignment(ctx context.Context, assignmentID, instructor string, ua UpdateAssignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, assignmentID, instructor string) error

		GetRoster(ctx context.Context, assignmentID, instructor string) (Roster, error)
		PeekRoster(ctx context.Context, assignmentID, instructor string) (Roster, error)
		UpdateRoster(ctx context.Context, assignmentID, instructor string, ru RosterUpdate) (Roster, error)

		ComputeFinalGrades(ctx context.Context, courseID, instructor string) ([]FinalGrade, error)
		SubmitFinalGrades(ctx context.Context, courseID, instructor string) ([]FinalGrade, error)
	}

	service struct {
		repo    Repository
		regSvc  RegistrationService
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, regSvc RegistrationService, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		regSvc:  regSvc,
		mailSvc: mailSvc,
	}
}

// authorizeAssignment loads the assignment and verifies that the acting
// identity is the instructor of its course. The loaded assignment is
// returned so callers avoid a second lookup.
func (svc *service) authorizeAssignment(ctx context.Context, assignmentID, instructor string) (Assignment, error) {
	a, err := svc.repo.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	if a.Course.Instructor != instructor {
		return Assignment{}, errors.Wrapf(ErrNotInstructor, "assignment %s", assignmentID)
	}
	return a, nil
}

func (svc *service) authorizeCourse(ctx context.Context, courseID, instructor string) (Course, error) {
	crs, err := svc.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if crs.Instructor != instructor {
		return Course{}, errors.Wrapf(ErrNotInstructor, "course %s", courseID)
	}
	return crs, nil
}

func (svc *service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		Instructor: nc.Instructor,
		Title:      nc.Title,
		Semester:   nc.Semester,
		Year:       nc.Year,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) EnrollStudent(ctx context.Context, ne NewEnrollment) (Enrollment, error) {
	if _, err := svc.repo.GetCourseByID(ctx, ne.CourseID); err != nil {
		return Enrollment{}, err
	}
	now := time.Now().UTC()
	enr := Enrollment{
		CourseID:     ne.CourseID,
		StudentEmail: ne.StudentEmail,
		StudentName:  ne.StudentName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateEnrollment(ctx, enr)
}

func (svc *service) QueryInstructorCourses(ctx context.Context, instructor string) ([]Course, error) {
	return svc.repo.QueryInstructorCourses(ctx, instructor)
}

func (svc *service) QueryGradeableAssignments(ctx context.Context, instructor string, ordering ...core.DBOrdering) ([]Assignment, error) {
	return svc.repo.QueryAssignmentsNeedingGrading(ctx, instructor, ordering...)
}

func (svc *service) CreateAssignment(ctx context.Context, instructor string, na NewAssignment) (Assignment, error) {
	if _, err := svc.authorizeCourse(ctx, na.CourseID, instructor); err != nil {
		return Assignment{}, err
	}
	now := time.Now().UTC()
	a := Assignment{
		CourseID:     na.CourseID,
		Name:         na.Name,
		DueDate:      na.DueDate.UTC(),
		NeedsGrading: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *service) RenameAssignment(ctx context.Context, assignmentID, instructor string, ua UpdateAssignment) (Assignment, error) {
	a, err := svc.authorizeAssignment(ctx, assignmentID, instructor)
	if err != nil {
		return Assignment{}, err
	}
	a.Name = ua.Name
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

// DeleteAssignment removes an assignment that has not been graded yet.
// An assignment off the needs-grading worklist, or with at least one entered
// score, conflicts and stays.
func (svc *service) DeleteAssignment(ctx context.Context, assignmentID, instructor string) error {
	a, err := svc.authorizeAssignment(ctx, assignmentID, instructor)
	if err != nil {
		return err
	}
	if !a.NeedsGrading {
		return errors.Wrapf(ErrAlreadyGraded, "assignment %s", assignmentID)
	}
	hasScores, err := svc.repo.AssignmentHasScores(ctx, assignmentID)
	if err != nil {
		return errors.Wrap(err, "checking assignment scores")
	}
	if hasScores {
		return errors.Wrapf(ErrAlreadyGraded, "assignment %s", assignmentID)
	}
	return svc.repo.DeleteAssignment(ctx, assignmentID)
}

// GetRoster materializes and returns the assignment's roster: every enrolled
// student ends up with exactly one persisted grade. This is a documented
// read-with-side-effect: grade IDs must exist before a client can submit
// score updates referencing them. Idempotent; absence is re-checked against
// the store on every call, so repeated or concurrent calls never create
// duplicates.
func (svc *service) GetRoster(ctx context.Context, assignmentID, instructor string) (Roster, error) {
	a, err := svc.authorizeAssignment(ctx, assignmentID, instructor)
	if err != nil {
		return Roster{}, err
	}

	enrs, err := svc.repo.QueryCourseEnrollments(ctx, a.CourseID)
	if err != nil {
		return Roster{}, errors.Wrap(err, "querying enrollments")
	}

	roster := Roster{
		AssignmentID:   a.ID,
		AssignmentName: a.Name,
		Grades:         make([]RosterEntry, 0, len(enrs)),
	}
	now := time.Now().UTC()
	for _, enr := range enrs {
		g, err := svc.repo.EnsureGrade(ctx, Grade{
			AssignmentID: a.ID,
			EnrollmentID: enr.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return Roster{}, errors.Wrapf(err, "materializing grade for %s", enr.StudentEmail)
		}
		roster.Grades = append(roster.Grades, RosterEntry{
			GradeID:      g.ID,
			StudentName:  enr.StudentName,
			StudentEmail: enr.StudentEmail,
			Score:        g.Score,
		})
	}
	return roster, nil
}

// PeekRoster is the strict read-only variant of GetRoster: it surfaces
// existing grades only and never writes. Students without a grade record yet
// appear with an empty grade ID and an unset score.
func (svc *service) PeekRoster(ctx context.Context, assignmentID, instructor string) (Roster, error) {
	a, err := svc.authorizeAssignment(ctx, assignmentID, instructor)
	if err != nil {
		return Roster{}, err
	}

	enrs, err := svc.repo.QueryCourseEnrollments(ctx, a.CourseID)
	if err != nil {
		return Roster{}, errors.Wrap(err, "querying enrollments")
	}

	roster := Roster{
		AssignmentID:   a.ID,
		AssignmentName: a.Name,
		Grades:         make([]RosterEntry, 0, len(enrs)),
	}
	for _, enr := range enrs {
		entry := RosterEntry{
			StudentName:  enr.StudentName,
			StudentEmail: enr.StudentEmail,
		}
		g, err := svc.repo.GetGrade(ctx, a.ID, enr.ID)
		switch errors.Cause(err) {
		case nil:
			entry.GradeID = g.ID
			entry.Score = g.Score
		case ErrGradeNotFound:
			// not materialized yet
		default:
			return Roster{}, errors.Wrapf(err, "getting grade for %s", enr.StudentEmail)
		}
		roster.Grades = append(roster.Grades, entry)
	}
	return roster, nil
}

// UpdateRoster overwrites the scores of the given grade records as one atomic
// unit and returns the refreshed roster. A grade ID that does not exist, or
// that belongs to a different assignment, fails the whole batch with
// ErrGradeNotFound and leaves every other edit unapplied.
func (svc *service) UpdateRoster(ctx context.Context, assignmentID, instructor string, ru RosterUpdate) (Roster, error) {
	if _, err := svc.authorizeAssignment(ctx, assignmentID, instructor); err != nil {
		return Roster{}, err
	}
	if err := svc.repo.UpdateGradeScores(ctx, assignmentID, ru.Grades); err != nil {
		return Roster{}, err
	}
	return svc.GetRoster(ctx, assignmentID, instructor)
}

func (svc *service) ComputeFinalGrades(ctx context.Context, courseID, instructor string) ([]FinalGrade, error) {
	crs, err := svc.authorizeCourse(ctx, courseID, instructor)
	if err != nil {
		return nil, err
	}
	return svc.computeFinalGrades(ctx, crs)
}

// computeFinalGrades averages every enrolled student's entered scores and
// maps them to letter grades. A student with an unset or malformed score, or
// with no graded work at all, fails the whole computation: partial course
// results must never reach the registration system.
func (svc *service) computeFinalGrades(ctx context.Context, crs Course) ([]FinalGrade, error) {
	enrs, err := svc.repo.QueryCourseEnrollments(ctx, crs.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}

	finals := make([]FinalGrade, 0, len(enrs))
	for _, enr := range enrs {
		grades, err := svc.repo.QueryEnrollmentGrades(ctx, enr.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "querying grades for %s", enr.StudentEmail)
		}

		var total float64
		var count int
		for _, g := range grades {
			pts, err := g.Score.Points()
			if err != nil {
				return nil, core.NewValidationError(
					errors.Wrapf(err, "student %s", enr.StudentEmail),
					core.FieldError{Field: enr.StudentEmail, Error: err.Error()},
				)
			}
			total += pts
			count++
		}
		if count == 0 {
			return nil, core.NewValidationError(
				errors.Wrapf(ErrNoGradedWork, "student %s", enr.StudentEmail),
				core.FieldError{Field: enr.StudentEmail, Error: ErrNoGradedWork.Error()},
			)
		}

		finals = append(finals, FinalGrade{
			StudentEmail: enr.StudentEmail,
			StudentName:  enr.StudentName,
			LetterGrade:  LetterGrade(total / float64(count)),
		})
	}
	return finals, nil
}

// SubmitFinalGrades computes the course's final grades and delivers them to
// the registration system as one unit, then mails the instructor a summary.
// A delivery failure is surfaced as ErrSubmissionFailed, distinct from local
// validation errors: computation succeeded but delivery did not.
func (svc *service) SubmitFinalGrades(ctx context.Context, courseID, instructor string) ([]FinalGrade, error) {
	crs, err := svc.authorizeCourse(ctx, courseID, instructor)
	if err != nil {
		return nil, err
	}
	finals, err := svc.computeFinalGrades(ctx, crs)
	if err != nil {
		return nil, err
	}
	if err := svc.regSvc.SendFinalGrades(ctx, crs.ID, finals); err != nil {
		return nil, errors.Wrapf(ErrSubmissionFailed, "course %s: %v", crs.ID, err)
	}
	svc.sendSubmissionMail(crs, finals)
	return finals, nil
}

func (svc *service) sendSubmissionMail(crs Course, finals []FinalGrade) {
	var body strings.Builder
	fmt.Fprintf(&body, "Final grades for %s (%s %d) were submitted to the registration system:\n\n",
		crs.Title, crs.Semester, crs.Year)
	for _, fg := range finals {
		fmt.Fprintf(&body, "%s <%s>: %s\n", fg.StudentName, fg.StudentEmail, fg.LetterGrade)
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: crs.Instructor}},
		Subject: fmt.Sprintf("Final grades submitted for %s", crs.Title),
		BodyStr: body.String(),
	})
}
