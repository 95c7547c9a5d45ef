// Package server exposes the operational HTTP surface of a running mirror.
//
// # Routes
//
//   - GET /healthz : database ping plus the supervisor state of every source listener
//   - GET /metrics : Prometheus exposition of the private metrics registry
//   - GET /callback : OAuth authorization code callback, only served during `sources auth`
//
// # Router
//
// [BasicRouter] registers method patterns on an [http.ServeMux] behind a [Middleware] stack.
// [Logging] and [Instrument] log and time each request.
package server
