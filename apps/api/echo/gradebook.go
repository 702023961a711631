package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/gradebook"
)

type gradebookApi struct {
	svc      gradebook.Service
	validate *validator.Validate
}

// registerGradebookAPI registers the gradebook endpoints on the API group.
// All of them require a valid JWT carrying instructor claims.
func registerGradebookAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc gradebook.Service, validate *validator.Validate) {
	api := gradebookApi{
		svc:      svc,
		validate: validate,
	}

	ag := g.Group("/assignments", jwt, instructorMiddleware())
	ag.GET("", api.queryGradeable)
	ag.POST("", api.createAssignment)
	ag.PUT("/:id", api.renameAssignment)
	ag.DELETE("/:id", api.deleteAssignment)
	ag.GET("/:id/roster", api.getRoster)
	ag.GET("/:id/roster/preview", api.peekRoster)
	ag.PUT("/:id/roster", api.updateRoster)

	cg := g.Group("/courses", jwt, instructorMiddleware())
	cg.GET("", api.queryCourses)
	cg.POST("/:id/final-grades", api.submitFinalGrades)
}

// Handlers

func (api *gradebookApi) queryGradeable(ctx echo.Context) error {
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	assignments, err := api.svc.QueryGradeableAssignments(ctx.Request().Context(), instructor, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying gradeable assignments")
	}
	if assignments == nil {
		assignments = []gradebook.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *gradebookApi) createAssignment(ctx echo.Context) error {
	var data gradebook.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.CreateAssignment(ctx.Request().Context(), instructor, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *gradebookApi) renameAssignment(ctx echo.Context) error {
	var data gradebook.UpdateAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}

	a, err := api.svc.RenameAssignment(ctx.Request().Context(), ctx.Param("id"), instructor, data)
	if err != nil {
		return errors.Wrap(err, "renaming assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *gradebookApi) deleteAssignment(ctx echo.Context) error {
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteAssignment(ctx.Request().Context(), ctx.Param("id"), instructor); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *gradebookApi) getRoster(ctx echo.Context) error {
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}
	roster, err := api.svc.GetRoster(ctx.Request().Context(), ctx.Param("id"), instructor)
	if err != nil {
		return errors.Wrap(err, "building roster")
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *gradebookApi) peekRoster(ctx echo.Context) error {
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}
	roster, err := api.svc.PeekRoster(ctx.Request().Context(), ctx.Param("id"), instructor)
	if err != nil {
		return errors.Wrap(err, "previewing roster")
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *gradebookApi) updateRoster(ctx echo.Context) error {
	var data gradebook.RosterUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RosterUpdate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}

	roster, err := api.svc.UpdateRoster(ctx.Request().Context(), ctx.Param("id"), instructor, data)
	if err != nil {
		return errors.Wrap(err, "updating roster")
	}
	return ctx.JSON(http.StatusOK, roster)
}

func (api *gradebookApi) queryCourses(ctx echo.Context) error {
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}
	courses, err := api.svc.QueryInstructorCourses(ctx.Request().Context(), instructor)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []gradebook.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *gradebookApi) submitFinalGrades(ctx echo.Context) error {
	instructor, err := getContextInstructor(ctx)
	if err != nil {
		return err
	}
	finals, err := api.svc.SubmitFinalGrades(ctx.Request().Context(), ctx.Param("id"), instructor)
	if err != nil {
		return errors.Wrap(err, "submitting final grades")
	}
	return ctx.JSON(http.StatusOK, finals)
}
