// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

// Package api defines the HTTP request and response shapes of the ragflow
// service and the adapter that turns them into pipeline state.
//
// # API Overview
//
//   - POST /ask: single-shot question, returns {"answer": "..."}
//   - POST /chat: multi-turn chat keyed by thread_id, JSON or SSE
//   - GET  /chat/ws: the same pipeline updates over WebSocket
//   - GET  /threads/{thread_id}/checkpoints: checkpoint lineage inspection
//   - GET/POST /projects: project registry
//   - POST /ingest: document ingestion for a project
//   - GET  /health, /healthz, /ready, /version, /metrics
//
// # Authentication
//
// When an API key is configured every route except the health probes and
// /metrics requires the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Adapter
//
// FromAsk and FromChat validate a request and build the initial
// workflow.State. Invalid requests fail with INVALID_REQUEST before any
// collaborator is called.
package api
