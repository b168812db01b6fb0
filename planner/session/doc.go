// Package session provides session management for the park planner.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - File persistence of planner state
//   - Session cleanup and expiration
//
// Core Types:
//
// Manager is the session manager behind service.SessionManager. Each
// service.Session owns its own engine.Planner together with the park it
// plans for and its creation and last access times.
//
// Session Identifiers:
//
// Generated IDs are 4 hex characters drawn from crypto/rand and checked
// against both memory and persistence. Lookups are case-insensitive.
//
// Persistence:
//
// FilePersistence writes one JSON file per session holding the park id and an
// engine.Snapshot of the planner. The snapshot carries the id counters, so a
// reloaded session never reissues a marker id.
//
// Usage:
//
//	persistence, err := session.NewFilePersistence("sessions", configMgr)
//	if err != nil {
//		return err
//	}
//	manager := session.NewManagerWithPersistence(persistence, session.WithLogger(logger))
//	if err := manager.LoadPersistedSessions(); err != nil {
//		return err
//	}
//
//	sess, err := manager.Create("", configMgr.GetDefault())
package session
