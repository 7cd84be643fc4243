package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/project"
	"github.com/fyplink/backend/core/user"
)

type projectApi struct {
	svc     project.ServiceInterface
	userSvc user.ServiceInterface
}

func registerProjectAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc project.ServiceInterface, userSvc user.ServiceInterface) {
	api := projectApi{svc: svc, userSvc: userSvc}

	pg := g.Group("/projects", jwt)
	pg.POST("", api.create, industryMiddleware())
	pg.GET("", api.query)

	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, industryMiddleware())
	dg.GET("/progress", api.progress)

	dg.GET("/approvals", api.retrieveApproval, teacherMiddleware())
	dg.GET("/approvals/university-decision", api.universityDecision, teacherMiddleware())
	dg.POST("/approvals", api.submitApproval, teacherMiddleware())
	dg.PUT("/approvals", api.editApproval, teacherMiddleware())

	dg.GET("/supervisions", api.querySupervisions, industryMiddleware())
	dg.POST("/supervisions", api.registerSupervision, teacherMiddleware())
	dg.GET("/supervisions/:teacherId", api.retrieveSupervision)
	dg.PUT("/supervisions/decision", api.decideSupervision, industryMiddleware())
	dg.DELETE("/supervisions/:teacherId", api.deleteSupervision, industryMiddleware())

	dg.POST("/selections", api.recordSelection, studentMiddleware())
	dg.POST("/submissions", api.recordSubmission, studentMiddleware())
	dg.POST("/reviews", api.recordReview, teacherMiddleware())
}

// projectError translates domain errors into HTTP responses.
func projectError(err error) error {
	switch errors.Cause(err) {
	case nil:
		return nil
	case project.ErrNotFound, project.ErrApprovalNotFound, project.ErrSupervisionNotFound:
		return errHttpNotFound
	case project.ErrNotProjectOwner, project.ErrNotTeacher, project.ErrNotStudent:
		return errHttpForbidden
	case project.ErrApprovalExists, project.ErrUniversityDecided, project.ErrApprovalNotEditable,
		project.ErrSupervisorTaken, project.ErrSupervisionExists, project.ErrProjectExpired:
		return core.NewValidationError(errors.New(err.Error()))
	}
	return err
}

// Handlers

func (api *projectApi) create(ctx echo.Context) error {
	var data project.NewProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProject")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	prj, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusCreated, prj)
}

func (api *projectApi) query(ctx echo.Context) error {
	filter := new(project.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []project.Project{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	prjs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying projects")
	}
	if prjs == nil {
		prjs = []project.Project{}
	}
	return ctx.JSON(http.StatusOK, prjs)
}

func (api *projectApi) retrieve(ctx echo.Context) error {
	prj, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) update(ctx echo.Context) error {
	var data project.UpdateProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProject")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	prj, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, prj)
}

func (api *projectApi) progress(ctx echo.Context) error {
	prog, err := api.svc.Progress(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, prog)
}

// retrieveApproval returns the requesting teacher's own decision; a teacher
// who never submitted gets a pending record, not a 404.
func (api *projectApi) retrieveApproval(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	teacherID := ctx.QueryParam("teacher_id")
	if teacherID == "" {
		teacherID = actor.ID
	}
	if teacherID != actor.ID && !actor.IsAdmin() {
		return errHttpForbidden
	}

	if _, err = api.svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return projectError(err)
	}
	apr, err := api.svc.TeacherApproval(ctx.Request().Context(), ctx.Param("id"), teacherID)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, apr)
}

func (api *projectApi) universityDecision(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	university := core.CleanString(ctx.QueryParam("university"))
	if university == "" {
		university = actor.University
	}
	if university == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "university", Error: "university is required"})
	}

	apr, err := api.svc.UniversityDecision(ctx.Request().Context(), ctx.Param("id"), university)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, apr)
}

func (api *projectApi) submitApproval(ctx echo.Context) error {
	var data project.NewApproval
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApproval")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	apr, err := api.svc.SubmitApproval(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusCreated, apr)
}

func (api *projectApi) editApproval(ctx echo.Context) error {
	var data project.EditApproval
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditApproval")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	apr, err := api.svc.EditApproval(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, apr)
}

// querySupervisions lists the queue; owner or admin only, the records carry
// teacher contact details.
func (api *projectApi) querySupervisions(ctx echo.Context) error {
	filter := new(project.SupervisionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []project.Supervision{})
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sups, err := api.svc.QuerySupervisions(ctx.Request().Context(), actor, ctx.Param("id"), filter)
	if err != nil {
		return projectError(err)
	}
	if sups == nil {
		sups = []project.Supervision{}
	}
	return ctx.JSON(http.StatusOK, sups)
}

func (api *projectApi) registerSupervision(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sup, err := api.svc.RegisterSupervision(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusCreated, sup)
}

func (api *projectApi) retrieveSupervision(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sup, err := api.svc.GetSupervision(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("teacherId"))
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, sup)
}

func (api *projectApi) decideSupervision(ctx echo.Context) error {
	var data project.SupervisionDecision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SupervisionDecision")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sup, err := api.svc.DecideSupervision(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusOK, sup)
}

func (api *projectApi) recordSelection(ctx echo.Context) error {
	var data project.NewSelection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSelection")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sel, err := api.svc.RecordSelection(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusCreated, sel)
}

func (api *projectApi) recordSubmission(ctx echo.Context) error {
	var data project.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.svc.RecordSubmission(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *projectApi) recordReview(ctx echo.Context) error {
	var data project.NewReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rev, err := api.svc.RecordReview(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return projectError(err)
	}
	return ctx.JSON(http.StatusCreated, rev)
}

func (api *projectApi) deleteSupervision(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.DeleteSupervision(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("teacherId")); err != nil {
		return projectError(err)
	}
	return ctx.NoContent(http.StatusNoContent)
}
