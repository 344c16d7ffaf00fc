// Package daemon coordinates the long-running orbridge process.
//
// It wires configuration, the entry store and the entity registry into a
// single lifecycle with flock-based locking to prevent multiple instances, and
// exposes the entities over a small JSON HTTP API:
//
//	GET  /api/status
//	GET  /api/entities
//	POST /api/reload
//	POST /api/ai_task/{entity}/generate_data
//	POST /api/conversation/{entity}/process
//
// When paths.api_token is set every request needs "Authorization: Bearer
// <token>". Dispatch failures answer with the upstream-derived status (503,
// 429, 401, 400 or 502) and the human-readable message.
package daemon
