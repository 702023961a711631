package regsvc

import (
	"context"
	"sync"

	"github.com/trezcool/gradebook/core/gradebook"
)

type (
	// Submission records one delivered payload.
	Submission struct {
		CourseID string
		Grades   []gradebook.FinalGrade
	}

	// Mock records submissions for inspection in tests. Set Err to make
	// deliveries fail.
	Mock struct {
		mu          sync.Mutex
		Err         error
		Submissions []Submission
	}
)

var _ gradebook.RegistrationService = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{}
}

func (svc *Mock) SendFinalGrades(_ context.Context, courseID string, grades []gradebook.FinalGrade) error {
	if svc.Err != nil {
		return svc.Err
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.Submissions = append(svc.Submissions, Submission{CourseID: courseID, Grades: grades})
	return nil
}

// Reset clears recorded submissions.
func (svc *Mock) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.Submissions = nil
	svc.Err = nil
}
