package main

// General API documentation for swaggo. Run `swag init -g cmd/iotmld/docs.go` to regenerate.
//
// @title           iotml API
// @version         1.0
// @description     Model cache, training jobs and inference for IoT telemetry models.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
