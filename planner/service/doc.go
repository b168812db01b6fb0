// Package service provides the business logic layer for the park planner.
//
// The service package implements:
//   - Multi-session planner management
//   - Marker and plan gestures with their status messages
//   - Marker and plan file import and export
//   - Default dataset loading and saved plans
//   - Offline tile planning for a park
//
// Core Interfaces:
//
// PlannerService is the main service interface providing every operation a
// front end can trigger. SessionManager handles session creation, retrieval,
// and lifecycle. ConfigManager loads park configurations.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the planner engine. Each session owns one engine.Planner. Every gesture runs
// as a single planner batch, so a connected Broadcaster receives exactly one
// re-rendered view per gesture, and the session is persisted afterwards.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	svc := service.NewPlannerService(sessionMgr, configMgr,
//		service.WithPlanStore(store),
//		service.WithBroadcaster(hub),
//	)
//
//	info, err := svc.CreateSession(ctx, "disneyland")
//	if err != nil {
//		return err
//	}
//	res, err := svc.PlaceMarker(ctx, info.ID, service.PlaceMarkerRequest{Lat: 33.8121, Lng: -117.9190})
//	fmt.Println(res.Message) // Added Marker 1 (misc) at 33.812100, -117.919000
//
// Metrics:
//
// Mutations and imports are counted on the parkplanner.mutations and
// parkplanner.imports OpenTelemetry counters. Without an installed SDK the
// global meter provider discards them.
package service
