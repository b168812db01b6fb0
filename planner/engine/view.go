package engine

import (
	"fmt"
	"iter"
	"slices"
)

// Placeholder rows shown when a list is empty
const (
	PlaceholderMarkers = "No markers"
	PlaceholderPlan    = "No items in your plan. Add from the Markers tab."
)

// IconKind tells a renderer which icon family to draw
type IconKind string

const (
	IconCategory IconKind = "category"
	IconNumbered IconKind = "numbered"
)

// Icon describes how a marker is drawn on the map
type Icon struct {
	Kind      IconKind `json:"kind"`
	Category  Category `json:"category"`
	Number    int      `json:"number,omitempty"`
	Glyph     string   `json:"glyph"`
	Color     string   `json:"color"`
	ClassName string   `json:"class_name"`
}

type categoryStyle struct {
	glyph string
	color string
}

var categoryStyles = map[Category]categoryStyle{
	Food:     {glyph: "🍔", color: "#e67e22"},
	Ride:     {glyph: "🎢", color: "#8e44ad"},
	Show:     {glyph: "🎭", color: "#c0392b"},
	Shop:     {glyph: "🛍", color: "#16a085"},
	Restroom: {glyph: "🚻", color: "#2980b9"},
	Service:  {glyph: "ℹ", color: "#7f8c8d"},
	Photo:    {glyph: "📷", color: "#d35400"},
	Misc:     {glyph: "📍", color: "#34495e"},
}

// MarkerView is the projection of one marker for the map layer
type MarkerView struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Category  Category `json:"category"`
	Position  Position `json:"position"`
	Visible   bool     `json:"visible"`
	PlanOrder int      `json:"plan_order,omitempty"`
	Icon      Icon     `json:"icon"`
}

// ListRow is one entry of the side list for the active mode
type ListRow struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Category Category `json:"category"`
	Coords   string   `json:"coords"`
	Order    int      `json:"order,omitempty"`
}

// View is a complete, freshly computed projection of a Planner
type View struct {
	Mode        ViewMode     `json:"mode"`
	Filter      Filter       `json:"filter"`
	Markers     []MarkerView `json:"markers"`
	Rows        []ListRow    `json:"rows"`
	Placeholder string       `json:"placeholder,omitempty"`
	MarkerCount int          `json:"marker_count"`
	PlanCount   int          `json:"plan_count"`
}

// IconFor picks the icon of m. planIndex is the 1-based plan position, 0 when not planned.
func IconFor(m Marker, mode ViewMode, planIndex int) Icon {
	style, ok := categoryStyles[m.Category]
	if !ok {
		style = categoryStyles[Misc]
	}
	if mode == ModePlan && planIndex > 0 {
		return Icon{
			Kind:      IconNumbered,
			Category:  m.Category,
			Number:    planIndex,
			Glyph:     fmt.Sprint(planIndex),
			Color:     style.color,
			ClassName: "marker marker-numbered",
		}
	}
	return Icon{
		Kind:      IconCategory,
		Category:  m.Category,
		Glyph:     style.glyph,
		Color:     style.color,
		ClassName: "marker marker-" + string(m.Category),
	}
}

// Visible applies the filter rule: the filter only counts in markers mode
func Visible(m Marker, mode ViewMode, filter Filter) bool {
	if mode == ModePlan {
		return true
	}
	return filter.Matches(m.Category)
}

// FormatCoords renders a position the way list rows show it
func FormatCoords(pos Position) string {
	return fmt.Sprintf("%.5f, %.5f", pos.Lat, pos.Lng)
}

// Rows yields the list rows of the active mode. The sequence reads the
// planner each time it is ranged over, so it always reflects current state.
func Rows(p *Planner) iter.Seq[ListRow] {
	return func(yield func(ListRow) bool) {
		if p.Mode() == ModePlan {
			for i, id := range p.Plan.Order() {
				m, ok := p.Store.Get(id)
				if !ok {
					continue
				}
				row := ListRow{ID: m.ID, Label: m.Label, Category: m.Category, Coords: FormatCoords(m.Position), Order: i + 1}
				if !yield(row) {
					return
				}
			}
			return
		}

		for _, m := range p.Store.All() {
			if !p.Filter().Matches(m.Category) {
				continue
			}
			row := ListRow{ID: m.ID, Label: m.Label, Category: m.Category, Coords: FormatCoords(m.Position)}
			if !yield(row) {
				return
			}
		}
	}
}

// Project computes the full view of p
func Project(p *Planner) *View {
	mode := p.Mode()
	filter := p.Filter()

	markers := p.Store.All()
	views := make([]MarkerView, 0, len(markers))
	for _, m := range markers {
		idx, _ := p.Plan.Index(m.ID)
		views = append(views, MarkerView{
			ID:        m.ID,
			Label:     m.Label,
			Category:  m.Category,
			Position:  m.Position,
			Visible:   Visible(m, mode, filter),
			PlanOrder: idx,
			Icon:      IconFor(m, mode, idx),
		})
	}

	rows := slices.Collect(Rows(p))
	if rows == nil {
		rows = []ListRow{}
	}

	v := &View{
		Mode:        mode,
		Filter:      filter,
		Markers:     views,
		Rows:        rows,
		MarkerCount: len(markers),
		PlanCount:   p.Plan.Len(),
	}
	if len(rows) == 0 {
		if mode == ModePlan {
			v.Placeholder = PlaceholderPlan
		} else {
			v.Placeholder = PlaceholderMarkers
		}
	}
	return v
}

// Renderer receives each freshly projected view
type Renderer interface {
	Render(view *View)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(view *View)

func (f RendererFunc) Render(view *View) { f(view) }

// Synchronizer re-renders a planner's view after every change
type Synchronizer struct {
	planner     *Planner
	renderer    Renderer
	unsubscribe func()
}

// NewSynchronizer subscribes r to p. Call Close to detach.
func NewSynchronizer(p *Planner, r Renderer) *Synchronizer {
	s := &Synchronizer{planner: p, renderer: r}
	s.unsubscribe = p.Subscribe(func(Change) { s.Refresh() })
	return s
}

// Refresh projects and renders immediately
func (s *Synchronizer) Refresh() *View {
	v := Project(s.planner)
	s.renderer.Render(v)
	return v
}

// Close stops rendering on changes
func (s *Synchronizer) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
