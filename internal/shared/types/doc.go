// Package types provides shared data structures for the bridge.
//
// This package defines the core identifiers and metadata used across all
// bridge components, ensuring type safety and consistent data structures.
//
// Core Types:
//   - PageID: Stable identifier for one debuggable UI page
//   - RequestID: Per-session correlation token for outbound requests
//   - Page: Metadata advertised on the discovery endpoints
//
// Example Usage:
//
//	page := types.Page{
//	    ID:    types.PageID("LobbyView#1"),
//	    Title: "LobbyView",
//	}
package types
