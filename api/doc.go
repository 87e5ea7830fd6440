// Package api exposes the runner over HTTP using go-chi.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /api/v1/flows
//	POST   /api/v1/flows/{flow}/orders
//	GET    /api/v1/orders
//	GET    /api/v1/orders/{orderId}
//	DELETE /api/v1/orders/{orderId}
//	POST   /api/v1/orders/{orderId}/steps/{stepId}
//
// Step responses only ever carry the frontend data of an engine response.
// Backend data stays on the order record, and order views do not expose
// the record's data at all.
package api
