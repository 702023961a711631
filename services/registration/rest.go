package regsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
)

type (
	// courseGrades is the wire shape expected by the registration system.
	courseGrades struct {
		CourseID string                 `json:"course_id"`
		Grades   []gradebook.FinalGrade `json:"grades"`
	}

	// restService delivers final grades over HTTP. Delivery is at-most-once:
	// a timeout or non-2xx response is reported as an error, never retried.
	restService struct {
		client  *http.Client
		baseURL string
		logger  core.Logger
	}
)

var _ gradebook.RegistrationService = (*restService)(nil)

func NewRESTService(conf *core.Config, logger core.Logger) *restService {
	return &restService{
		client:  &http.Client{Timeout: conf.Registration.Timeout},
		baseURL: conf.Registration.URL,
		logger:  logger,
	}
}

func (svc restService) SendFinalGrades(ctx context.Context, courseID string, grades []gradebook.FinalGrade) error {
	body, err := json.Marshal(courseGrades{CourseID: courseID, Grades: grades})
	if err != nil {
		return errors.Wrap(err, "marshalling final grades")
	}

	url := fmt.Sprintf("%s/course/%s", svc.baseURL, courseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building registration request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := svc.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "delivering final grades")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusBadRequest {
		resBody, _ := ioutil.ReadAll(res.Body)
		svc.logger.Error(fmt.Sprintf("registration system refused final grades - status: %d - body: %s", res.StatusCode, resBody))
		return errors.Errorf("registration system returned %s", res.Status)
	}
	return nil
}
