package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/gradebook/core/gradebook"
)

func CreateCourse(
	t *testing.T,
	repo gradebook.Repository,
	instructor, title, semester string,
	year int,
	createdAt ...time.Time,
) gradebook.Course {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	crs := gradebook.Course{
		Instructor: instructor,
		Title:      title,
		Semester:   semester,
		Year:       year,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateEnrollment(
	t *testing.T,
	repo gradebook.Repository,
	courseID, email, name string,
) gradebook.Enrollment {
	t.Helper()

	now := time.Now().UTC()
	enr := gradebook.Enrollment{
		CourseID:     courseID,
		StudentEmail: email,
		StudentName:  name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}

func CreateAssignment(
	t *testing.T,
	repo gradebook.Repository,
	courseID, name string,
	dueDate time.Time,
) gradebook.Assignment {
	t.Helper()

	now := time.Now().UTC()
	a := gradebook.Assignment{
		CourseID:     courseID,
		Name:         name,
		DueDate:      dueDate.UTC(),
		NeedsGrading: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a, err := repo.CreateAssignment(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}

// SetScore materializes the grade for (assignment, enrollment) and stores
// the raw score text on it.
func SetScore(
	t *testing.T,
	repo gradebook.Repository,
	assignmentID, enrollmentID, score string,
) gradebook.Grade {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()
	g, err := repo.EnsureGrade(ctx, gradebook.Grade{
		AssignmentID: assignmentID,
		EnrollmentID: enrollmentID,
		Score:        gradebook.UnsetScore(),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("EnsureGrade() failed: %v", err)
	}
	if score != "" {
		if err = repo.UpdateGradeScores(ctx, assignmentID, []gradebook.RosterEdit{{GradeID: g.ID, Score: gradebook.NewScore(score)}}); err != nil {
			t.Fatalf("UpdateGradeScores() failed: %v", err)
		}
		g, err = repo.GetGradeByID(ctx, g.ID)
		if err != nil {
			t.Fatalf("GetGradeByID() failed: %v", err)
		}
	}
	return g
}
