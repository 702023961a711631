package main

import (
	"context"
	"time"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

// enroll adds a student to a course; at most one enrollment per
// (course, student) pair.
func (cli *commandLine) enroll(courseID, email, name string) error {
	ctx := context.Background()

	if _, err := cli.gbRepo.GetCourseByID(ctx, courseID); err != nil {
		return err
	}

	now := time.Now().UTC()
	enr := gradebook.Enrollment{
		CourseID:     courseID,
		StudentEmail: core.CleanString(email, true /* lower */),
		StudentName:  core.CleanString(name),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	enr, err := cli.gbRepo.CreateEnrollment(ctx, enr)
	if err != nil {
		return err
	}
	logger.Printf("student %s enrolled: %s", enr.StudentEmail, enr.ID)
	return nil
}
