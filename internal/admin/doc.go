// Package admin serves the operator HTTP API.
//
// Routes:
//
//	GET    /health               liveness, unauthenticated
//	GET    /health/ready         readiness, unauthenticated
//	POST   /api/agents           register {identity, credential}
//	DELETE /api/agents/{identity}
//	GET    /api/agents           running sessions
//	GET    /api/stats            registrations today and running count
//
// Everything under /api requires a bearer token (see package auth) unless
// auth is disabled. Errors are JSON objects of the form {"error": "..."}.
package admin
