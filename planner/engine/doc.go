// Package engine provides the core planner state for the Park Planner.
//
// The engine package implements:
//   - Marker Store: the single source of truth for marker identity, position,
//     label and category
//   - Plan Sequencer: the ordered, duplicate-free visit plan referencing markers
//   - Planner: the explicit per-session state object owning both, plus the
//     active view mode and category filter
//   - View projection: icon choice, visibility and list rows derived from state
//
// Core Types:
//
// Marker is a point of interest. MarkerStore owns every Marker; all other
// components hold ids only. PlanSequencer holds an ordered list of ids and
// never references a marker that is not in the store: removing a marker
// removes its plan entry inside the same call, before any listener runs.
//
// Usage:
//
//	p := engine.NewPlanner()
//
//	id, err := p.Store.Add(engine.Position{Lat: 28.4177, Lng: -81.5812}, "", "")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	outcome, err := p.Plan.Append(id)
//	_ = p.SetMode(engine.ModePlan)
//
//	view := engine.Project(p)
//
// Notifications:
//
// MarkerStore, PlanSequencer and Planner expose Subscribe. A Synchronizer
// subscribes to a Planner and re-renders a full projection after every
// mutation, filter change or mode switch. Planner.Batch suppresses
// intermediate notifications so imports render once, after state is replaced.
//
// Concurrency:
//
// Planner state is not safe for concurrent mutation on its own. Callers
// (the service layer) serialise access per session.
package engine
