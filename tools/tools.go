//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run pkg@version` or installed via `go install` and are not
// tracked in go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - gomock generator for internal/mocks
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0 (matches go.uber.org/mock in go.mod)
//
// Air - Live reload for the gateway while editing handlers and landing pages
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: DEV=true AUTH_MODE=mock air -- ./cmd/enquiry-gateway
//   Docs: https://github.com/air-verse/air
