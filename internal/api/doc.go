// Package api hosts the operator HTTP listener that runs beside a crawl.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the worker pool snapshot.
package api
