// Package api defines the request and response bodies of the AgentKernel HTTP API.
//
// # API Overview
//
// AgentKernel exposes one cognition kernel over a RESTful API:
//   - Knowledge: facts, rules, forward inference, queries, explanations, proofs
//   - Planning: state-space search over declarative actions, decisions
//   - Memory: store, recall and clear episodic / working / semantic memory
//   - Snapshots: save, list, restore and delete kernel snapshots
//   - Admin: runtime configuration (hot reload, history, rollback)
//   - Health monitoring and Prometheus metrics
//
// # Authentication
//
// When jwt.secret is configured, every endpoint except health, version and
// metrics requires a bearer token signed with HS256:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
//	http://localhost:8080/api/v1
package api
