// Package server ties the relaycore runtime together: it upgrades WebSocket
// connections, resolves principals, pumps events between clients and the
// hub, and exposes the HTTP surface including the admin API.
//
// The implementation is organized into specialized files for clients,
// routing, origin checks, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
