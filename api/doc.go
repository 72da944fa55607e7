// Package api hosts the HTTP surface of imageflow.
//
// # API Overview
//
// imageflow exposes a small HTTP API:
//   - GET /generate?prompts=a,b,c submits one generation job per prompt and
//     returns a map of prompt to poll URL (or a per-prompt error message)
//   - GET /result/{id} reports the status of a job
//   - GET /result/{id}/watch streams the status over a websocket until the
//     job reaches a terminal state
//   - GET /api/v1/images lists recent generation records
//   - GET /media/... serves stored images
//   - /health, /healthz, /ready, /version for health checks
//
// # Authentication
//
// When server.api_keys is configured, every endpoint except the health checks
// requires the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// Poll and image URLs are built from server.public_base_url, or from the
// request scheme and host when it is empty:
//
//	http://localhost:8080
package api
