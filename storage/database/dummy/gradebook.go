package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

type gradebookRepository struct {
	db *DB
}

var _ gradebook.Repository = (*gradebookRepository)(nil) // interface compliance check

func NewGradebookRepository(db *DB) *gradebookRepository {
	return &gradebookRepository{db: db}
}

func (repo *gradebookRepository) CreateCourse(_ context.Context, crs gradebook.Course) (gradebook.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	crs.ID = uuid.New().String()
	repo.db.courses[crs.ID] = &courseRow{seq: repo.db.nextSeq(), crs: crs}
	return crs, nil
}

func (repo *gradebookRepository) GetCourseByID(_ context.Context, id string) (gradebook.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if row, ok := repo.db.courses[id]; ok {
		return row.crs, nil
	}
	return gradebook.Course{}, gradebook.ErrCourseNotFound
}

func (repo *gradebookRepository) QueryInstructorCourses(_ context.Context, instructor string) ([]gradebook.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]*courseRow, 0)
	for _, row := range repo.db.courses {
		if row.crs.Instructor == instructor {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	courses := make([]gradebook.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.crs)
	}
	return courses, nil
}

func (repo *gradebookRepository) CreateEnrollment(_ context.Context, enr gradebook.Enrollment) (gradebook.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, row := range repo.db.enrollments {
		if row.enr.CourseID == enr.CourseID && row.enr.StudentEmail == enr.StudentEmail {
			return gradebook.Enrollment{}, gradebook.ErrEnrollmentExists
		}
	}
	enr.ID = uuid.New().String()
	repo.db.enrollments[enr.ID] = &enrollmentRow{seq: repo.db.nextSeq(), enr: enr}
	return enr, nil
}

func (repo *gradebookRepository) QueryCourseEnrollments(_ context.Context, courseID string) ([]gradebook.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]*enrollmentRow, 0)
	for _, row := range repo.db.enrollments {
		if row.enr.CourseID == courseID {
			rows = append(rows, row)
		}
	}
	// persisted order
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	enrs := make([]gradebook.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.enr)
	}
	return enrs, nil
}

func (repo *gradebookRepository) CreateAssignment(_ context.Context, a gradebook.Assignment) (gradebook.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a.ID = uuid.New().String()
	repo.db.assignments[a.ID] = &assignmentRow{seq: repo.db.nextSeq(), a: a}
	return repo.joinCourse(a), nil
}

func (repo *gradebookRepository) GetAssignmentByID(_ context.Context, id string) (gradebook.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if row, ok := repo.db.assignments[id]; ok {
		return repo.joinCourse(row.a), nil
	}
	return gradebook.Assignment{}, gradebook.ErrAssignmentNotFound
}

func (repo *gradebookRepository) QueryAssignmentsNeedingGrading(_ context.Context, instructor string, ordering ...core.DBOrdering) ([]gradebook.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]*assignmentRow, 0)
	for _, row := range repo.db.assignments {
		if !row.a.NeedsGrading {
			continue
		}
		if crsRow, ok := repo.db.courses[row.a.CourseID]; ok && crsRow.crs.Instructor == instructor {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	assignments := make([]gradebook.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, repo.joinCourse(row.a))
	}
	sortAssignments(assignments, ordering)
	return assignments, nil
}

func (repo *gradebookRepository) UpdateAssignment(_ context.Context, a gradebook.Assignment) (gradebook.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.assignments[a.ID]
	if !ok {
		return gradebook.Assignment{}, gradebook.ErrAssignmentNotFound
	}
	row.a = a
	return repo.joinCourse(row.a), nil
}

func (repo *gradebookRepository) DeleteAssignment(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return gradebook.ErrAssignmentNotFound
	}
	delete(repo.db.assignments, id)
	// cascade grades
	for gid, row := range repo.db.grades {
		if row.g.AssignmentID == id {
			delete(repo.db.grades, gid)
		}
	}
	return nil
}

func (repo *gradebookRepository) EnsureGrade(_ context.Context, g gradebook.Grade) (gradebook.Grade, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// atomic check-then-insert: the whole-table lock plays the role of the
	// DB unique constraint
	for _, row := range repo.db.grades {
		if row.g.AssignmentID == g.AssignmentID && row.g.EnrollmentID == g.EnrollmentID {
			return repo.joinStudent(row.g), nil
		}
	}
	g.ID = uuid.New().String()
	repo.db.grades[g.ID] = &gradeRow{seq: repo.db.nextSeq(), g: g}
	return repo.joinStudent(g), nil
}

func (repo *gradebookRepository) GetGrade(_ context.Context, assignmentID, enrollmentID string) (gradebook.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, row := range repo.db.grades {
		if row.g.AssignmentID == assignmentID && row.g.EnrollmentID == enrollmentID {
			return repo.joinStudent(row.g), nil
		}
	}
	return gradebook.Grade{}, gradebook.ErrGradeNotFound
}

func (repo *gradebookRepository) GetGradeByID(_ context.Context, id string) (gradebook.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if row, ok := repo.db.grades[id]; ok {
		return repo.joinStudent(row.g), nil
	}
	return gradebook.Grade{}, gradebook.ErrGradeNotFound
}

func (repo *gradebookRepository) QueryEnrollmentGrades(_ context.Context, enrollmentID string) ([]gradebook.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]*gradeRow, 0)
	for _, row := range repo.db.grades {
		if row.g.EnrollmentID == enrollmentID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	grades := make([]gradebook.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, repo.joinStudent(row.g))
	}
	return grades, nil
}

func (repo *gradebookRepository) AssignmentHasScores(_ context.Context, assignmentID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, row := range repo.db.grades {
		if row.g.AssignmentID == assignmentID && row.g.Score.IsSet() {
			return true, nil
		}
	}
	return false, nil
}

func (repo *gradebookRepository) UpdateGradeScores(_ context.Context, assignmentID string, edits []gradebook.RosterEdit) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	// validate every edit before applying any: all-or-nothing. A grade owned
	// by another assignment is as absent as a missing one.
	for _, edit := range edits {
		row, ok := repo.db.grades[edit.GradeID]
		if !ok || row.g.AssignmentID != assignmentID {
			return errors.Wrapf(gradebook.ErrGradeNotFound, "id %s", edit.GradeID)
		}
	}
	for _, edit := range edits {
		repo.db.grades[edit.GradeID].g.Score = edit.Score
	}
	return nil
}

// joinCourse mirrors the SQL join filling Assignment.Course.
// Callers must hold at least a read lock.
func (repo *gradebookRepository) joinCourse(a gradebook.Assignment) gradebook.Assignment {
	if row, ok := repo.db.courses[a.CourseID]; ok {
		a.Course = row.crs
	}
	return a
}

// joinStudent mirrors the SQL join filling the grade's student identity.
// Callers must hold at least a read lock.
func (repo *gradebookRepository) joinStudent(g gradebook.Grade) gradebook.Grade {
	if row, ok := repo.db.enrollments[g.EnrollmentID]; ok {
		g.StudentEmail = row.enr.StudentEmail
		g.StudentName = row.enr.StudentName
	}
	return g
}

func sortAssignments(assignments []gradebook.Assignment, ordering []core.DBOrdering) {
	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		sort.SliceStable(assignments, func(a, b int) bool {
			x, y := assignments[a], assignments[b]
			if !ord.Ascending {
				x, y = y, x
			}
			switch ord.Field {
			case "name":
				return x.Name < y.Name
			case "due_date":
				return x.DueDate.Before(y.DueDate)
			case "created_at":
				return x.CreatedAt.Before(y.CreatedAt)
			}
			return false
		})
	}
}
