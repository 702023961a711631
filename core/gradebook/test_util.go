package gradebook

import (
	"github.com/trezcool/gradebook/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service for tests; pair it with the dummy
// repository and the registration/email mocks so everything runs in-process
// and synchronously.
func NewServiceMock(repo Repository, regSvc RegistrationService, mailSvc core.EmailService) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			regSvc:  regSvc,
			mailSvc: mailSvc,
		},
	}
}
