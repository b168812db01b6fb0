// Package api provides HTTP REST API handlers for the park planner.
//
// The api package implements:
//   - Session management endpoints
//   - Marker and trip plan gestures
//   - Marker and plan file import/export
//   - Park configuration and offline tile planning
//   - WebSocket upgrade handling
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create new session ({"park": "disneyland"})
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Get specific session
//   - DELETE /api/sessions/{id} - Delete session
//   - GET /api/sessions/{id}/view - Current view
//
// Markers:
//   - POST /api/sessions/{id}/markers - Place a marker ({"lat", "lng", "label", "category"})
//   - DELETE /api/sessions/{id}/markers - Clear all markers
//   - DELETE /api/sessions/{id}/markers/{marker} - Remove a marker
//   - PUT /api/sessions/{id}/markers/{marker}/label - Rename
//   - PUT /api/sessions/{id}/markers/{marker}/category - Change type
//   - PUT /api/sessions/{id}/markers/{marker}/position - Drag to a new position
//
// Trip Plan:
//   - POST /api/sessions/{id}/plan - Append ({"marker_id": "m1"})
//   - DELETE /api/sessions/{id}/plan - Clear the plan
//   - POST /api/sessions/{id}/plan/save - Save the plan locally
//   - DELETE /api/sessions/{id}/plan/{marker} - Remove from the plan
//   - POST /api/sessions/{id}/plan/{marker}/move - {"delta": -1} or {"target_id": "m3"}
//
// View:
//   - PUT /api/sessions/{id}/mode - {"mode": "markers|plan"}
//   - PUT /api/sessions/{id}/filter - {"filter": "all|food|ride|..."}
//
// Files:
//   - GET /api/sessions/{id}/export/markers|plan|geojson - Downloads
//   - POST /api/sessions/{id}/import/markers - Raw marker file body (?clear=false merges)
//   - POST /api/sessions/{id}/import/plan - Raw plan file body
//   - POST /api/sessions/{id}/defaults - Load the default datasets
//
// Parks:
//   - GET /api/parks - List available parks
//   - GET /api/parks/{name} - Park configuration
//   - GET /api/parks/{name}/tiles - Offline tile plan (?zoom=15,16&urls=true)
//
// Usage:
//
//	server := api.NewServer(plannerService, hub, api.WithLogger(logger))
//	http.ListenAndServe(":8080", server)
//
// Gestures answer 200 with an ActionResult, also when nothing changed
// (success false, e.g. "Already in plan"). A rejected import answers 422
// with the reason and the unchanged view.
//
// Error Handling:
//
// Errors are returned as JSON with appropriate HTTP status codes:
//
//	{
//	  "error": "error message",
//	  "code": 404
//	}
package api
