/*
Package main is the researchflow service entrypoint.

Subcommands: serve (start the HTTP service), health (probe the local
health endpoint), version. Configuration is loaded from defaults, an
optional YAML file, and RESEARCHFLOW_* environment variables.

The serve command runs two listeners: the API server (research
submission, token issuance, websocket subscription) and a metrics
server exposing /metrics for Prometheus. The middleware chain is
Recovery, OTel tracing, request logging, and metrics recording.

Build metadata (Version, BuildTime, GitCommit) is injected via ldflags.
*/
package main
