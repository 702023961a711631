package dummydb

import (
	"sync"

	"github.com/trezcool/gradebook/core/gradebook"
)

type (
	// DB is an in-memory store for dev and tests. A single lock guards all
	// tables so multi-record updates stay atomic.
	DB struct {
		sync.RWMutex
		seq         int
		courses     map[string]*courseRow
		enrollments map[string]*enrollmentRow
		assignments map[string]*assignmentRow
		grades      map[string]*gradeRow
	}

	courseRow struct {
		seq int
		crs gradebook.Course
	}
	enrollmentRow struct {
		seq int
		enr gradebook.Enrollment
	}
	assignmentRow struct {
		seq int
		a   gradebook.Assignment
	}
	gradeRow struct {
		seq int
		g   gradebook.Grade
	}
)

func Open() (*DB, error) {
	db := &DB{
		courses:     make(map[string]*courseRow),
		enrollments: make(map[string]*enrollmentRow),
		assignments: make(map[string]*assignmentRow),
		grades:      make(map[string]*gradeRow),
	}
	return db, nil
}

// Reset drops all rows; used between tests.
func (db *DB) Reset() {
	db.Lock()
	defer db.Unlock()
	db.seq = 0
	db.courses = make(map[string]*courseRow)
	db.enrollments = make(map[string]*enrollmentRow)
	db.assignments = make(map[string]*assignmentRow)
	db.grades = make(map[string]*gradeRow)
}

func (db *DB) nextSeq() int {
	db.seq++
	return db.seq
}
