// Package websocket pushes planner views to browsers over WebSocket.
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client connection is handled by a read and a
// write goroutine; all client bookkeeping happens on the hub's Run loop.
//
// Message Protocol:
//
// Outgoing messages are JSON-encoded:
//
//	{"session_id": "ab12", "event": "view_update", "view": {...}}
//
// A view carries the marker icons, the list rows of the active mode and the
// counters, so a client can redraw without any further request. Clients do
// not send actions over the socket; mutations go through the REST API.
//
// Session Integration:
//
// Clients connect to /ws?session=ab12. The current view is sent on connect,
// then every change to the session produces exactly one view_update.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.WithLogger(logger))
//	go hub.Run()
//	defer hub.Stop()
//
//	svc := service.NewPlannerService(sessions, configs, service.WithBroadcaster(hub))
//
// Hub implements service.Broadcaster. BroadcastView never blocks the caller:
// when the queue is full the update is dropped, and a client whose own
// buffer is full is disconnected.
package websocket
