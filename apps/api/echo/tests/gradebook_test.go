package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	echoapi "github.com/trezcool/gradebook/apps/api/echo"
	"github.com/trezcool/gradebook/core/gradebook"
	emailsvc "github.com/trezcool/gradebook/services/email"
	testutil "github.com/trezcool/gradebook/tests"
)

const (
	instructorEmail = "prof@school.edu"
	instructorName  = "Prof Smith"
)

func getStudentToken(t *testing.T, email string) string {
	claims := echoapi.GetInstructorClaims("Student", email)
	claims.IsInstructor = false
	token, err := echoapi.GenerateToken(claims)
	if err != nil {
		t.Fatalf("getStudentToken() failed: %v", err)
	}
	return token
}

func Test_gradebookApi_queryGradeable(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	otherCrs := testutil.CreateCourse(t, gbRepo, "other@school.edu", "CST 363", "Fall", 2026)

	hw2 := testutil.CreateAssignment(t, gbRepo, crs.ID, "Homework 2", time.Now().AddDate(0, 0, 14))
	hw1 := testutil.CreateAssignment(t, gbRepo, crs.ID, "Homework 1", time.Now().AddDate(0, 0, 7))
	testutil.CreateAssignment(t, gbRepo, otherCrs.ID, "Foreign HW", time.Now().AddDate(0, 0, 7))

	token := getToken(t, instructorName, instructorEmail)

	tests := []httpTest{
		{name: "Auth required", path: "/api/assignments", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Instructor required", path: "/api/assignments", token: getStudentToken(t, "jane@school.edu"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Own worklist only, in persisted order", path: "/api/assignments", token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, hw2, hw1),
		},
		{
			name: "Ordered by due date", path: "/api/assignments?ordering=due_date", token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, hw1, hw2),
		},
		{
			name: "Ordered by due date, descending", path: "/api/assignments?ordering=-due_date", token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, hw2, hw1),
		},
		{
			name: "Empty worklist", path: "/api/assignments", token: getToken(t, "New Prof", "new@school.edu"),
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_gradebookApi_createAssignment(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	foreignCrs := testutil.CreateCourse(t, gbRepo, "other@school.edu", "CST 363", "Fall", 2026)

	token := getToken(t, instructorName, instructorEmail)
	due := time.Now().AddDate(0, 0, 14).UTC().Truncate(time.Second)

	t.Run("Validation errors", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/assignments", token, marchallObj(t, gradebook.NewAssignment{}))
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"course_id": "this field is required",
				"name":      "this field is required",
				"due_date":  "this field is required",
			}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Unknown course", func(t *testing.T) {
		body := marchallObj(t, gradebook.NewAssignment{CourseID: "nope", Name: "HW", DueDate: due})
		req, rec := newAuthRequest(http.MethodPost, "/api/assignments", token, body)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "creating assignment: course not found"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Foreign course", func(t *testing.T) {
		body := marchallObj(t, gradebook.NewAssignment{CourseID: foreignCrs.ID, Name: "HW", DueDate: due})
		req, rec := newAuthRequest(http.MethodPost, "/api/assignments", token, body)
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("Created", func(t *testing.T) {
		body := marchallObj(t, gradebook.NewAssignment{CourseID: crs.ID, Name: "Project 1", DueDate: due})
		req, rec := newAuthRequest(http.MethodPost, "/api/assignments", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var a gradebook.Assignment
		if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if a.ID == "" || a.Name != "Project 1" || !a.NeedsGrading {
			t.Errorf("unexpected assignment: %+v", a)
		}
		if a.Course.ID != crs.ID {
			t.Errorf("course not joined: %+v", a.Course)
		}
	})
}

func Test_gradebookApi_renameAssignment(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	a := testutil.CreateAssignment(t, gbRepo, crs.ID, "Homework 1", time.Now().AddDate(0, 0, 7))

	token := getToken(t, instructorName, instructorEmail)
	path := "/api/assignments/" + a.ID
	body := marchallObj(t, gradebook.UpdateAssignment{Name: "Homework 1 (revised)"})

	tests := []httpTest{
		{name: "Auth required", path: path, body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Not the instructor", path: path, body: body, token: getToken(t, "Other", "other@school.edu"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Unknown assignment", path: "/api/assignments/nope", body: body, token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "renaming assignment: assignment not found"}),
		},
		{
			name: "Name required", path: path, body: marchallObj(t, gradebook.UpdateAssignment{}), token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": "this field is required"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Renamed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var got gradebook.Assignment
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if got.Name != "Homework 1 (revised)" {
			t.Errorf("Name = %s, want Homework 1 (revised)", got.Name)
		}
	})
}

func Test_gradebookApi_deleteAssignment(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	enr := testutil.CreateEnrollment(t, gbRepo, crs.ID, "jane@school.edu", "Jane Doe")
	graded := testutil.CreateAssignment(t, gbRepo, crs.ID, "Graded HW", time.Now().AddDate(0, 0, 7))
	clean := testutil.CreateAssignment(t, gbRepo, crs.ID, "Clean HW", time.Now().AddDate(0, 0, 7))
	testutil.SetScore(t, gbRepo, graded.ID, enr.ID, "88")

	token := getToken(t, instructorName, instructorEmail)

	tests := []httpTest{
		{name: "Auth required", path: "/api/assignments/" + clean.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Not the instructor", path: "/api/assignments/" + clean.ID, token: getToken(t, "Other", "other@school.edu"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Graded assignment conflicts", path: "/api/assignments/" + graded.ID, token: token,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: fmt.Sprintf("deleting assignment: assignment %s: assignment already graded", graded.ID)}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodDelete, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Deleted", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/assignments/"+clean.ID, token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}

		// gone from the worklist
		req, rec = newAuthRequest(http.MethodGet, "/api/assignments", token)
		app.ServeHTTP(rec, req)
		var assignments []gradebook.Assignment
		if err := json.Unmarshal(rec.Body.Bytes(), &assignments); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(assignments) != 1 || assignments[0].ID != graded.ID {
			t.Errorf("unexpected worklist: %+v", assignments)
		}
	})
}

func Test_gradebookApi_roster(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	testutil.CreateEnrollment(t, gbRepo, crs.ID, "jane@school.edu", "Jane Doe")
	testutil.CreateEnrollment(t, gbRepo, crs.ID, "john@school.edu", "John Moe")
	a := testutil.CreateAssignment(t, gbRepo, crs.ID, "Homework 1", time.Now().AddDate(0, 0, 7))

	token := getToken(t, instructorName, instructorEmail)
	rosterPath := "/api/assignments/" + a.ID + "/roster"

	getRoster := func(t *testing.T, path string) gradebook.Roster {
		t.Helper()
		req, rec := newAuthRequest(http.MethodGet, path, token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var roster gradebook.Roster
		if err := json.Unmarshal(rec.Body.Bytes(), &roster); err != nil {
			t.Fatalf("unmarshalling roster: %v", err)
		}
		return roster
	}

	t.Run("Preview before first view shows no grade records", func(t *testing.T) {
		roster := getRoster(t, rosterPath+"/preview")
		if len(roster.Grades) != 2 {
			t.Fatalf("len(Grades) = %d, want 2", len(roster.Grades))
		}
		for _, entry := range roster.Grades {
			if entry.GradeID != "" {
				t.Errorf("preview materialized a grade: %+v", entry)
			}
		}
	})

	var gradeIDs []string

	t.Run("View materializes one grade per student", func(t *testing.T) {
		roster := getRoster(t, rosterPath)
		if roster.AssignmentID != a.ID || roster.AssignmentName != "Homework 1" {
			t.Errorf("unexpected roster header: %+v", roster)
		}
		if len(roster.Grades) != 2 {
			t.Fatalf("len(Grades) = %d, want 2", len(roster.Grades))
		}
		for _, entry := range roster.Grades {
			if entry.GradeID == "" {
				t.Errorf("grade not materialized: %+v", entry)
			}
			if entry.Score.IsSet() {
				t.Errorf("fresh grade has a score: %+v", entry)
			}
			gradeIDs = append(gradeIDs, entry.GradeID)
		}
	})

	t.Run("Repeat view reuses the same records", func(t *testing.T) {
		roster := getRoster(t, rosterPath)
		for i, entry := range roster.Grades {
			if entry.GradeID != gradeIDs[i] {
				t.Errorf("Grades[%d].GradeID = %s, want %s", i, entry.GradeID, gradeIDs[i])
			}
		}
	})

	t.Run("Update applies scores atomically", func(t *testing.T) {
		// bad id: nothing applied
		body := marchallObj(t, gradebook.RosterUpdate{Grades: []gradebook.RosterEdit{
			{GradeID: gradeIDs[0], Score: gradebook.NewScore("95")},
			{GradeID: "nope", Score: gradebook.NewScore("80")},
		}})
		req, rec := newAuthRequest(http.MethodPut, rosterPath, token, body)
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "updating roster: id nope: grade record not found"}),
		}
		checkCodeAndData(t, tt, rec)

		roster := getRoster(t, rosterPath)
		if roster.Grades[0].Score.IsSet() {
			t.Errorf("score applied despite failed batch: %+v", roster.Grades[0])
		}

		// happy path
		body = marchallObj(t, gradebook.RosterUpdate{Grades: []gradebook.RosterEdit{
			{GradeID: gradeIDs[0], Score: gradebook.NewScore("95")},
			{GradeID: gradeIDs[1], Score: gradebook.NewScore("87.5")},
		}})
		req, rec = newAuthRequest(http.MethodPut, rosterPath, token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var got gradebook.Roster
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("unmarshalling roster: %v", err)
		}
		if got.Grades[0].Score.String.String != "95" || got.Grades[1].Score.String.String != "87.5" {
			t.Errorf("unexpected scores: %+v", got.Grades)
		}
	})

	t.Run("Empty batch rejected", func(t *testing.T) {
		body := marchallObj(t, gradebook.RosterUpdate{})
		req, rec := newAuthRequest(http.MethodPut, rosterPath, token, body)
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"grades": "this field is required"}),
		}
		checkCodeAndData(t, tt, rec)
	})
}

func Test_gradebookApi_queryCourses(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	testutil.CreateCourse(t, gbRepo, "other@school.edu", "CST 363", "Fall", 2026)

	tests := []httpTest{
		{name: "Auth required", path: "/api/courses", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Own courses only", path: "/api/courses", token: getToken(t, instructorName, instructorEmail),
			wantCode: http.StatusOK, wantData: marchallList(t, crs),
		},
		{
			name: "No courses", path: "/api/courses", token: getToken(t, "New Prof", "new@school.edu"),
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_gradebookApi_submitFinalGrades(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	jane := testutil.CreateEnrollment(t, gbRepo, crs.ID, "jane@school.edu", "Jane Doe")
	john := testutil.CreateEnrollment(t, gbRepo, crs.ID, "john@school.edu", "John Moe")
	hw := testutil.CreateAssignment(t, gbRepo, crs.ID, "Homework 1", time.Now().AddDate(0, 0, 7))
	testutil.SetScore(t, gbRepo, hw.ID, jane.ID, "92")

	token := getToken(t, instructorName, instructorEmail)
	path := "/api/courses/" + crs.ID + "/final-grades"

	t.Run("Student without graded work fails the whole submission", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, token)
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"john@school.edu": "no graded assignments"}),
		}
		checkCodeAndData(t, tt, rec)
		if len(regMock.Submissions) != 0 {
			t.Errorf("partial results reached the registration system: %+v", regMock.Submissions)
		}
	})

	testutil.SetScore(t, gbRepo, hw.ID, john.ID, "78")

	t.Run("Submitted", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, token)
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusOK,
			wantData: marchallList(t,
				gradebook.FinalGrade{StudentEmail: "jane@school.edu", StudentName: "Jane Doe", LetterGrade: "A"},
				gradebook.FinalGrade{StudentEmail: "john@school.edu", StudentName: "John Moe", LetterGrade: "C"},
			),
		}
		checkCodeAndData(t, tt, rec)

		if len(regMock.Submissions) != 1 {
			t.Fatalf("len(Submissions) = %d, want 1", len(regMock.Submissions))
		}
		if regMock.Submissions[0].CourseID != crs.ID {
			t.Errorf("CourseID = %s, want %s", regMock.Submissions[0].CourseID, crs.ID)
		}
		if len(emailsvc.SentMessages) != 1 {
			t.Fatalf("len(SentMessages) = %d, want 1", len(emailsvc.SentMessages))
		}
		if to := emailsvc.SentMessages[0].To[0].Address; to != instructorEmail {
			t.Errorf("summary email recipient = %s, want %s", to, instructorEmail)
		}
	})

	t.Run("Delivery failure surfaces as bad gateway", func(t *testing.T) {
		regMock.Reset()
		emailsvc.ClearSentMessages()
		regMock.Err = fmt.Errorf("connection refused")

		req, rec := newAuthRequest(http.MethodPost, path, token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusBadGateway, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "final grade submission failed") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
		if len(regMock.Submissions) != 0 {
			t.Errorf("len(Submissions) = %d, want 0", len(regMock.Submissions))
		}
		if len(emailsvc.SentMessages) != 0 {
			t.Errorf("summary email sent on failed delivery")
		}
	})

	t.Run("Not the instructor", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, getToken(t, "Other", "other@school.edu"))
		app.ServeHTTP(rec, req)
		tt := httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}
		checkCodeAndData(t, tt, rec)
	})
}

// Exercises the full grading flow over the wire: view the roster, enter a
// score, view again without duplicating records, submit final grades once.
func Test_gradebookApi_gradingFlow(t *testing.T) {
	app := setup(t)

	crs := testutil.CreateCourse(t, gbRepo, instructorEmail, "CST 438", "Fall", 2026)
	testutil.CreateEnrollment(t, gbRepo, crs.ID, "jane@school.edu", "Jane Doe")
	a := testutil.CreateAssignment(t, gbRepo, crs.ID, "Homework 1", time.Now().AddDate(0, 0, 7))

	token := getToken(t, instructorName, instructorEmail)
	rosterPath := "/api/assignments/" + a.ID + "/roster"

	// 1. view the roster; a grade record appears
	req, rec := newAuthRequest(http.MethodGet, rosterPath, token)
	app.ServeHTTP(rec, req)
	var roster gradebook.Roster
	if err := json.Unmarshal(rec.Body.Bytes(), &roster); err != nil {
		t.Fatalf("unmarshalling roster: %v", err)
	}
	if len(roster.Grades) != 1 || roster.Grades[0].GradeID == "" {
		t.Fatalf("unexpected roster: %+v", roster)
	}
	gradeID := roster.Grades[0].GradeID

	// 2. enter a score
	body := marchallObj(t, gradebook.RosterUpdate{Grades: []gradebook.RosterEdit{
		{GradeID: gradeID, Score: gradebook.NewScore("95")},
	}})
	req, rec = newAuthRequest(http.MethodPut, rosterPath, token, body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	// 3. view again; same record, no duplicate
	req, rec = newAuthRequest(http.MethodGet, rosterPath, token)
	app.ServeHTTP(rec, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &roster); err != nil {
		t.Fatalf("unmarshalling roster: %v", err)
	}
	if len(roster.Grades) != 1 || roster.Grades[0].GradeID != gradeID {
		t.Fatalf("grade record duplicated or replaced: %+v", roster)
	}
	if roster.Grades[0].Score.String.String != "95" {
		t.Fatalf("Score = %q, want %q", roster.Grades[0].Score.String.String, "95")
	}

	// 4. submit final grades; the registration system is invoked exactly once
	req, rec = newAuthRequest(http.MethodPost, "/api/courses/"+crs.ID+"/final-grades", token)
	app.ServeHTTP(rec, req)
	tt := httpTest{
		wantCode: http.StatusOK,
		wantData: marchallList(t, gradebook.FinalGrade{StudentEmail: "jane@school.edu", StudentName: "Jane Doe", LetterGrade: "A"}),
	}
	checkCodeAndData(t, tt, rec)
	if len(regMock.Submissions) != 1 {
		t.Fatalf("len(Submissions) = %d, want 1", len(regMock.Submissions))
	}
}
