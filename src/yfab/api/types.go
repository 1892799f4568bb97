package api

import (
	"github.com/bitswalk/yfab/src/yfab/auth"
	"github.com/bitswalk/yfab/src/yfab/db"
	"github.com/bitswalk/yfab/src/yfab/flash"
	"github.com/bitswalk/yfab/src/yfab/operation"
	"github.com/bitswalk/yfab/src/yfab/workspace"
)

// Workspace is the build tree the API drives
type Workspace interface {
	Snapshot() (*workspace.Snapshot, error)
	BuildOp(target string) operation.Func
	CleanOp() operation.Func
	FlashOp(device, image string) (*workspace.FlashPlan, error)
	DeployOp(bundle, password string) (*workspace.DeployPlan, error)
	Drives() ([]flash.Drive, error)
}

// API holds the handler dependencies
type API struct {
	workspace   Workspace
	controller  *operation.Controller
	history     *db.OperationRepository
	jwtService  *auth.JWTService
	broadcaster *Broadcaster
}

// Config contains API configuration options
type Config struct {
	Workspace   Workspace
	Controller  *operation.Controller
	History     *db.OperationRepository
	JWTService  *auth.JWTService
	Broadcaster *Broadcaster
}

// APIInfo represents the root API discovery response
type APIInfo struct {
	Name        string           `json:"name" example:"yfab"`
	Description string           `json:"description" example:"Yocto image fabrication assistant"`
	Version     string           `json:"version" example:"Dunlin (2026.10) - v1.0.0-4f9f297"`
	APIVersions []string         `json:"api_versions" example:"v1"`
	Endpoints   APIInfoEndpoints `json:"endpoints"`
}

// APIInfoEndpoints contains the available API endpoints
type APIInfoEndpoints struct {
	Health  string `json:"health" example:"/v1/health"`
	Version string `json:"version" example:"/v1/version"`
	Events  string `json:"events" example:"/v1/events"`
	Swagger string `json:"swagger" example:"/swagger/index.html"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status" example:"healthy"`
	Timestamp string `json:"timestamp" example:"2026-10-18T10:30:00Z"`
}

// VersionResponse represents the version information response
type VersionResponse struct {
	Version        string `json:"version" example:"Dunlin (2026.10) - v1.0.0-4f9f297"`
	ReleaseName    string `json:"release_name" example:"Dunlin"`
	ReleaseVersion string `json:"release_version" example:"1.0.0"`
	BuildDate      string `json:"build_date" example:"2026-10-18T10:30:00Z"`
	GitCommit      string `json:"git_commit" example:"4f9f297"`
	GoVersion      string `json:"go_version" example:"go1.24"`
}

// BuildRequest starts a build. An empty target builds the session image.
type BuildRequest struct {
	Target string `json:"target" example:"core-image-base"`
}

// FlashRequest starts a flash. An empty image selects the newest image of
// the session machine.
type FlashRequest struct {
	Device string `json:"device" example:"/dev/sdb"`
	Image  string `json:"image" example:""`
}

// DeployRequest starts an OTA deploy
type DeployRequest struct {
	Bundle   string `json:"bundle" example:""`
	Password string `json:"password" example:""`
}

// OperationResponse is returned when an operation starts
type OperationResponse struct {
	ID     string         `json:"id" example:"0f7c2b1e-8d0a-4c55-9a55-2b9a0c5f6d1e"`
	Kind   operation.Kind `json:"kind" example:"build"`
	Target string         `json:"target" example:"core-image-base"`
}

// OperationListResponse is a page of operation history
type OperationListResponse struct {
	Count      int                  `json:"count" example:"1"`
	Operations []db.OperationRecord `json:"operations"`
}

// ActiveResponse lists the running operations
type ActiveResponse struct {
	Operations []operation.Operation `json:"operations"`
}

// DriveListResponse lists removable drives
type DriveListResponse struct {
	Count  int           `json:"count" example:"1"`
	Drives []flash.Drive `json:"drives"`
}
