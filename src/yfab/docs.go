// Package main yfab API
//
// @title           yfab API
// @version         1.0
// @description     Drive Yocto image builds, flashing and OTA deploys over HTTP.
//
// @host            localhost:8765
// @BasePath        /
// @schemes         http
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token authentication. Mint one with `yfab token`.
package main
