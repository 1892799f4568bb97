package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/bitswalk/yfab/src/common/errors"
	"github.com/bitswalk/yfab/src/yfab/db"
	"github.com/bitswalk/yfab/src/yfab/flash"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// handleRoot returns API discovery information
func (a *API) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, APIInfo{
		Name:        "yfab",
		Description: "Yocto image fabrication assistant",
		Version:     VersionInfo.Version,
		APIVersions: []string{"v1"},
		Endpoints: APIInfoEndpoints{
			Health:  "/v1/health",
			Version: "/v1/version",
			Events:  "/v1/events",
			Swagger: "/swagger/index.html",
		},
	})
}

// handleHealth returns the current health status of the server
// @Summary      Health check
// @Tags         System
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /v1/health [get]
func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVersion returns version and build information
// @Summary      Version information
// @Tags         System
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /v1/version [get]
func (a *API) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{
		Version:        VersionInfo.Version,
		ReleaseName:    VersionInfo.ReleaseName,
		ReleaseVersion: VersionInfo.ReleaseVersion,
		BuildDate:      VersionInfo.BuildDate,
		GitCommit:      VersionInfo.GitCommit,
		GoVersion:      runtime.Version(),
	})
}

// handleGetSession returns the session settings, secrets masked
// @Summary      Current session
// @Tags         Session
// @Produce      json
// @Success      200  {object}  workspace.Snapshot
// @Failure      500  {object}  errors.Response
// @Router       /v1/session [get]
func (a *API) handleGetSession(c *gin.Context) {
	snap, err := a.workspace.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleListDrives lists removable drives that can be flashed
// @Summary      Removable drives
// @Tags         Flash
// @Produce      json
// @Success      200  {object}  DriveListResponse
// @Failure      500  {object}  errors.Response
// @Router       /v1/drives [get]
func (a *API) handleListDrives(c *gin.Context) {
	drives, err := a.workspace.Drives()
	if err != nil {
		respondError(c, errors.ErrInternal.WithMessage("Failed to scan drives").WithCause(err))
		return
	}
	if drives == nil {
		drives = []flash.Drive{}
	}
	c.JSON(http.StatusOK, DriveListResponse{Count: len(drives), Drives: drives})
}

// handleListOperations returns operation history, newest first
// @Summary      Operation history
// @Tags         Operations
// @Produce      json
// @Param        kind   query     string  false  "Filter by kind (build, flash, deploy)"
// @Param        limit  query     int     false  "Maximum number of records"
// @Success      200    {object}  OperationListResponse
// @Failure      500    {object}  errors.Response
// @Router       /v1/operations [get]
func (a *API) handleListOperations(c *gin.Context) {
	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxListLimit {
			limit = parsed
		}
	}

	ops, err := a.history.List(db.OperationFilter{Kind: c.Query("kind"), Limit: limit})
	if err != nil {
		respondError(c, errors.ErrDatabaseQuery.WithCause(err))
		return
	}
	if ops == nil {
		ops = []db.OperationRecord{}
	}
	c.JSON(http.StatusOK, OperationListResponse{Count: len(ops), Operations: ops})
}

// handleGetOperation returns one operation record
// @Summary      Get an operation
// @Tags         Operations
// @Produce      json
// @Param        id   path      string  true  "Operation ID"
// @Success      200  {object}  db.OperationRecord
// @Failure      404  {object}  errors.Response
// @Router       /v1/operations/{id} [get]
func (a *API) handleGetOperation(c *gin.Context) {
	op, err := a.history.GetByID(c.Param("id"))
	if err != nil {
		respondError(c, errors.ErrDatabaseQuery.WithCause(err))
		return
	}
	if op == nil {
		respondError(c, errors.ErrOperationNotFound)
		return
	}
	c.JSON(http.StatusOK, op)
}

// handleListActive returns the running operations
// @Summary      Running operations
// @Tags         Operations
// @Produce      json
// @Success      200  {object}  ActiveResponse
// @Router       /v1/operations/active [get]
func (a *API) handleListActive(c *gin.Context) {
	ops := a.controller.Active()
	if ops == nil {
		ops = []operation.Operation{}
	}
	c.JSON(http.StatusOK, ActiveResponse{Operations: ops})
}

// handleBuild starts a build
// @Summary      Start a build
// @Description  Configures the tree, fetches missing layers and runs bitbake. Answers 409 while a build-class operation runs.
// @Tags         Operations
// @Accept       json
// @Produce      json
// @Param        body  body      BuildRequest  false  "Build target"
// @Success      202   {object}  OperationResponse
// @Failure      401   {object}  errors.Response
// @Failure      409   {object}  errors.Response
// @Security     BearerAuth
// @Router       /v1/build [post]
func (a *API) handleBuild(c *gin.Context) {
	var req BuildRequest
	if !bindOptional(c, &req) {
		return
	}
	if a.rejectBusy(c, operation.KindBuild) {
		return
	}

	target := req.Target
	if target == "" {
		snap, err := a.workspace.Snapshot()
		if err != nil {
			respondError(c, err)
			return
		}
		target = snap.State.Image
	}

	a.trigger(c, operation.KindBuild, target, a.workspace.BuildOp(req.Target))
}

// handleClean runs the cleanall task on the session image
// @Summary      Clean the session image
// @Tags         Operations
// @Produce      json
// @Success      202  {object}  OperationResponse
// @Failure      401  {object}  errors.Response
// @Failure      409  {object}  errors.Response
// @Security     BearerAuth
// @Router       /v1/clean [post]
func (a *API) handleClean(c *gin.Context) {
	if a.rejectBusy(c, operation.KindBuild) {
		return
	}
	snap, err := a.workspace.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}
	a.trigger(c, operation.KindBuild, "clean "+snap.State.Image, a.workspace.CleanOp())
}

// handleFlash writes an image to a removable drive
// @Summary      Flash an image
// @Tags         Operations
// @Accept       json
// @Produce      json
// @Param        body  body      FlashRequest  true  "Device and optional image"
// @Success      202   {object}  OperationResponse
// @Failure      400   {object}  errors.Response
// @Failure      401   {object}  errors.Response
// @Failure      404   {object}  errors.Response
// @Failure      409   {object}  errors.Response
// @Security     BearerAuth
// @Router       /v1/flash [post]
func (a *API) handleFlash(c *gin.Context) {
	var req FlashRequest
	if !bindOptional(c, &req) {
		return
	}
	if a.rejectBusy(c, operation.KindFlash) {
		return
	}

	plan, err := a.workspace.FlashOp(req.Device, req.Image)
	if err != nil {
		respondError(c, err)
		return
	}
	a.trigger(c, operation.KindFlash, plan.Request.Device, plan.Op)
}

// handleDeploy installs an update bundle on the OTA target
// @Summary      Deploy an update bundle
// @Tags         Operations
// @Accept       json
// @Produce      json
// @Param        body  body      DeployRequest  false  "Optional bundle and password override"
// @Success      202   {object}  OperationResponse
// @Failure      400   {object}  errors.Response
// @Failure      401   {object}  errors.Response
// @Failure      404   {object}  errors.Response
// @Failure      409   {object}  errors.Response
// @Security     BearerAuth
// @Router       /v1/deploy [post]
func (a *API) handleDeploy(c *gin.Context) {
	var req DeployRequest
	if !bindOptional(c, &req) {
		return
	}
	if a.rejectBusy(c, operation.KindDeploy) {
		return
	}

	plan, err := a.workspace.DeployOp(req.Bundle, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	a.trigger(c, operation.KindDeploy, plan.Target.Host, plan.Op)
}

// trigger starts fn and answers 202, or 409 when the kind is busy
func (a *API) trigger(c *gin.Context, kind operation.Kind, target string, fn operation.Func) {
	id, ok := a.controller.Trigger(kind, target, fn)
	if !ok {
		c.JSON(http.StatusConflict, errors.ErrBusy.ToResponse())
		return
	}
	log.Info("Operation triggered over HTTP", "id", id, "kind", kind, "target", target, "subject", subject(c))
	c.JSON(http.StatusAccepted, OperationResponse{ID: id, Kind: kind, Target: target})
}

func (a *API) rejectBusy(c *gin.Context, kind operation.Kind) bool {
	if !a.controller.Busy(kind) {
		return false
	}
	c.JSON(http.StatusConflict, errors.ErrBusy.ToResponse())
	return true
}

// bindOptional decodes a JSON body when one is present
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, errors.ErrInvalidRequest.WithCause(err))
		return false
	}
	return true
}
