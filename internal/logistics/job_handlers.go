package logistics

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/models"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func actorOf(c echo.Context) (models.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return models.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return actor, nil
}

func bindBody(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return nil
}

// PostJob - vendor publishes a cargo job
// POST /jobs
func (h *Handler) PostJob(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in PostJobInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	job, err := h.svc.PostJob(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Cargo job created", "job": job})
}

// ClaimJob - driver accepts an open job
// POST /jobs/:id/assign
func (h *Handler) ClaimJob(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in ClaimInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	job, sh, err := h.svc.ClaimJob(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Job accepted", "job": job, "shipment": sh})
}

// PATCH /jobs/:id/status
func (h *Handler) UpdateJobStatus(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in JobStatusInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	job, err := h.svc.UpdateJobStatus(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Job status updated", "job": job})
}

// GET /jobs/:id
func (h *Handler) GetJob(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	job, err := h.svc.GetJob(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "job": job})
}

// GET /jobs/vendor?status=
func (h *Handler) ListVendorJobs(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	jobs, err := h.svc.ListVendorJobs(c.Request().Context(), actor, models.JobStatus(c.QueryParam("status")))
	if err != nil {
		return err
	}
	return jobList(c, jobs)
}

// GET /jobs/driver
func (h *Handler) ListDriverJobs(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	jobs, err := h.svc.ListDriverJobs(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return jobList(c, jobs)
}

func jobList(c echo.Context, jobs []models.Job) error {
	if jobs == nil {
		jobs = []models.Job{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(jobs), "jobs": jobs})
}
