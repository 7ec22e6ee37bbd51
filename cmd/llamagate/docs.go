package main

// General API documentation for swaggo. The served doc lives in
// internal/httpapi/swagger.go (build tag swagger).
//
// @title           llamagate API
// @version         1.0
// @description     Gateway that supervises llama-server, forwards /v1 calls to it and reports health.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
