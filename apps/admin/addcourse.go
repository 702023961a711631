package main

import (
	"context"
	"time"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

// addCourse registers a new gradebook.Course
func (cli *commandLine) addCourse(title, semester string, year int, instructor string) error {
	ctx := context.Background()
	now := time.Now().UTC()

	crs := gradebook.Course{
		Instructor: core.CleanString(instructor, true /* lower */),
		Title:      core.CleanString(title),
		Semester:   core.CleanString(semester),
		Year:       year,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	crs, err := cli.gbRepo.CreateCourse(ctx, crs)
	if err != nil {
		return err
	}
	logger.Printf("course created: %s", crs.ID)
	return nil
}
