// Package api hosts the archiver's HTTP status interface. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs, GET /v1/runs/latest and POST /v1/runs for run history and manual runs.
//   - GET /v1/websites for the tracked websites.
package api
