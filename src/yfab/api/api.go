// Package api is the HTTP control surface of `yfab serve`.
package api

import (
	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/common/version"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the api package
func SetLogger(l *logs.Logger) {
	log = l
}

// VersionInfo is reported by the root and version endpoints
var VersionInfo = version.New()

// SetVersionInfo sets the version info for the api package
func SetVersionInfo(v *version.Info) {
	if v != nil {
		VersionInfo = v
	}
}

// New creates a new API instance
func New(cfg Config) *API {
	b := cfg.Broadcaster
	if b == nil {
		b = NewBroadcaster()
	}
	return &API{
		workspace:   cfg.Workspace,
		controller:  cfg.Controller,
		history:     cfg.History,
		jwtService:  cfg.JWTService,
		broadcaster: b,
	}
}
