// Package kit provides the endpoint abstraction shared by hyperdrive's
// transports. An Endpoint is one tool-shaped call; Middleware wraps it
// with cross-cutting behaviour; RegisterMCPTool mounts it on an MCP
// server.
package kit

import "context"

// Endpoint is a single RPC-shaped operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares. The first middleware runs outermost:
// Chain(a, b, c)(ep) is a(b(c(ep))).
func Chain(outer Middleware, others ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(others) - 1; i >= 0; i-- {
			next = others[i](next)
		}
		return outer(next)
	}
}
