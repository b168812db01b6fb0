// Package mcp provides a Model Context Protocol front end for the park planner.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Tool definitions for every planner gesture
//   - A thin proxy to the REST API, so agents and browsers share sessions
//
// MCP Tools:
//
// Sessions: create_session, list_sessions, get_session, delete_session, get_view.
// Markers: place_marker, rename_marker, set_marker_type, move_marker,
// remove_marker, clear_markers.
// Plan: add_to_plan, remove_from_plan, move_plan_item, clear_plan, save_plan.
// View: set_mode, set_filter.
// Files: export_markers, export_plan, export_geojson, import_markers,
// import_plan, load_defaults.
// Parks: list_parks, get_park, tile_plan.
//
// Transport Modes:
//
// The server supports two transport modes:
//   - Stdio: the mcp command serves stdio and calls a running server
//   - HTTP: the server mounts POST /mcp next to the REST API
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
//
// Because every tool goes through the REST API, changes made by an agent
// are pushed to connected browsers like any other gesture.
package mcp
