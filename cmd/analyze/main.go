// Command analyze prints quick, human-readable heuristics about marker and
// plan files. It summarizes category counts, flags markers outside the park
// bounds or stacked on top of each other, and shows how a plan file would
// resolve against the markers: reused, added, and the walking distance.
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/codec"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

// DuplicateDistance is how close, in metres, two markers must be to be reported as stacked
const DuplicateDistance = 5.0

// MarkerAnalysis summarizes one marker file
type MarkerAnalysis struct {
	File          string
	Total         int
	ByCategory    map[engine.Category]int
	UnknownTypes  []string
	OutOfRange    []codec.MarkerItem
	OutsideBounds []codec.MarkerItem
	DuplicateIDs  []string
	Stacked       [][2]codec.MarkerItem
}

// PlanAnalysis summarizes one plan file against a set of markers
type PlanAnalysis struct {
	File        string
	Items       int
	OrderGaps   bool
	Reused      []string
	Added       []string
	WalkMetres  float64
	LongestLeg  float64
	LongestFrom string
	LongestTo   string
}

func main() {
	cmd := &cli.Command{
		Name:      "analyze",
		Usage:     "Summarize marker and plan files",
		ArgsUsage: "[markers.json ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing park configurations"},
			&cli.StringFlag{Name: "park", Usage: "Park whose bounds markers are checked against"},
			&cli.StringFlag{Name: "plan", Usage: "Plan file to resolve against the markers"},
			&cli.BoolFlag{Name: "no-color", Usage: "Disable colored output"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("no-color") {
		color.NoColor = true
	}
	out := cmd.Writer
	if out == nil {
		out = os.Stdout
	}

	var park *config.ParkConfig
	if name := cmd.String("park"); name != "" {
		configs, err := config.NewManager(cmd.String("config-dir"))
		if err != nil {
			return err
		}
		if park, err = configs.LoadConfig(name); err != nil {
			return err
		}
	}

	files := cmd.Args().Slice()
	if len(files) == 0 {
		files = []string{filepath.Join("data", codec.MarkersFileName)}
	}

	var all []codec.MarkerItem
	for _, file := range files {
		fmt.Fprintf(out, "\n=== Analyzing %s ===\n", file)
		doc, err := readMarkers(file)
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", color.New(color.FgRed).Sprint("ERROR"), err)
			continue
		}
		printMarkerAnalysis(out, analyzeMarkers(file, doc, park))
		all = append(all, doc.Markers...)
	}

	if planFile := cmd.String("plan"); planFile != "" {
		fmt.Fprintf(out, "\n=== Analyzing %s ===\n", planFile)
		data, err := os.ReadFile(planFile)
		if err != nil {
			return fmt.Errorf("error reading file: %w", err)
		}
		doc, err := codec.ParsePlan(data)
		if err != nil {
			fmt.Fprintf(out, "%s %v\n", color.New(color.FgRed).Sprint("INVALID"), err)
			return nil
		}
		printPlanAnalysis(out, analyzePlan(planFile, doc, all))
	}
	return nil
}

func readMarkers(path string) (*codec.MarkerDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return codec.ParseMarkers(data)
}

// analyzeMarkers inspects a parsed marker file. park may be nil.
func analyzeMarkers(file string, doc *codec.MarkerDocument, park *config.ParkConfig) MarkerAnalysis {
	a := MarkerAnalysis{
		File:       file,
		Total:      len(doc.Markers),
		ByCategory: make(map[engine.Category]int),
	}

	seen := make(map[string]bool)
	unknown := make(map[string]bool)
	for _, m := range doc.Markers {
		if !geo.InRange(m.Lat, m.Lng) {
			a.OutOfRange = append(a.OutOfRange, m)
			continue
		}
		if _, ok := engine.ParseCategory(m.Type); !ok && m.Type != "" && !unknown[m.Type] {
			unknown[m.Type] = true
			a.UnknownTypes = append(a.UnknownTypes, m.Type)
		}
		a.ByCategory[codec.CategoryFor(m.Type)]++

		if m.ID != "" {
			if seen[m.ID] {
				a.DuplicateIDs = append(a.DuplicateIDs, m.ID)
			}
			seen[m.ID] = true
		}
		if park != nil && !park.Contains(engine.Position{Lat: m.Lat, Lng: m.Lng}) {
			a.OutsideBounds = append(a.OutsideBounds, m)
		}
	}

	for i := range doc.Markers {
		for j := i + 1; j < len(doc.Markers); j++ {
			mi, mj := doc.Markers[i], doc.Markers[j]
			if d, err := distance(mi.Lat, mi.Lng, mj.Lat, mj.Lng); err == nil && d < DuplicateDistance {
				a.Stacked = append(a.Stacked, [2]codec.MarkerItem{mi, mj})
			}
		}
	}
	return a
}

// analyzePlan resolves plan items the way an import would: by id, then by
// position, otherwise as a new marker.
func analyzePlan(file string, doc *codec.PlanDocument, markers []codec.MarkerItem) PlanAnalysis {
	a := PlanAnalysis{File: file, Items: len(doc.Plan)}

	items := append([]codec.PlanItem(nil), doc.Plan...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	for i, item := range items {
		if item.Order != i+1 {
			a.OrderGaps = true
		}
	}

	for i, item := range items {
		name := item.Label
		if name == "" {
			name = item.ID
		}
		if resolves(item, markers) {
			a.Reused = append(a.Reused, name)
		} else {
			a.Added = append(a.Added, name)
		}

		if i == 0 {
			continue
		}
		prev := items[i-1]
		d, err := distance(prev.Lat, prev.Lng, item.Lat, item.Lng)
		if err != nil {
			continue
		}
		a.WalkMetres += d
		if d > a.LongestLeg {
			a.LongestLeg = d
			a.LongestFrom, a.LongestTo = prev.Label, item.Label
		}
	}
	return a
}

func resolves(item codec.PlanItem, markers []codec.MarkerItem) bool {
	pos := engine.Position{Lat: item.Lat, Lng: item.Lng}
	for _, m := range markers {
		if item.ID != "" && m.ID == item.ID {
			return true
		}
		if pos.Near(engine.Position{Lat: m.Lat, Lng: m.Lng}, engine.CoordinateEpsilon) {
			return true
		}
	}
	return false
}

// distance approximates ground distance in metres from Web Mercator
// coordinates, corrected by the scale factor at the mean latitude.
func distance(lat1, lng1, lat2, lng2 float64) (float64, error) {
	x1, y1, err := geo.Mercator(lng1, lat1)
	if err != nil {
		return 0, err
	}
	x2, y2, err := geo.Mercator(lng2, lat2)
	if err != nil {
		return 0, err
	}
	scale := math.Cos((lat1 + lat2) / 2 * math.Pi / 180)
	return math.Hypot(x2-x1, y2-y1) * scale, nil
}

func warn(format string, a ...any) string {
	return color.New(color.FgYellow).Sprint("⚠️  ") + fmt.Sprintf(format, a...)
}

func ok(format string, a ...any) string {
	return color.New(color.FgGreen).Sprint("✅ ") + fmt.Sprintf(format, a...)
}

func printMarkerAnalysis(out io.Writer, a MarkerAnalysis) {
	fmt.Fprintf(out, "Markers: %d\n", a.Total)

	categories := make([]string, 0, len(a.ByCategory))
	for c, n := range a.ByCategory {
		categories = append(categories, fmt.Sprintf("%s=%d", c, n))
	}
	sort.Strings(categories)
	fmt.Fprintf(out, "By type: %s\n", strings.Join(categories, ", "))

	if len(a.UnknownTypes) > 0 {
		fmt.Fprintln(out, warn("Unknown types imported as misc: %s", strings.Join(a.UnknownTypes, ", ")))
	}
	if len(a.OutOfRange) > 0 {
		fmt.Fprintln(out, warn("%d marker(s) have out-of-range coordinates and would be skipped", len(a.OutOfRange)))
	}
	if len(a.DuplicateIDs) > 0 {
		fmt.Fprintln(out, warn("Duplicate ids get fresh ids on import: %s", strings.Join(a.DuplicateIDs, ", ")))
	}

	if len(a.OutsideBounds) > 0 {
		fmt.Fprintln(out, warn("%d marker(s) outside the park bounds", len(a.OutsideBounds)))
		for i, m := range a.OutsideBounds {
			if i == 5 {
				fmt.Fprintf(out, "   ... and %d more\n", len(a.OutsideBounds)-5)
				break
			}
			fmt.Fprintf(out, "   %s (%.6f, %.6f)\n", m.Label, m.Lat, m.Lng)
		}
	}

	if len(a.Stacked) > 0 {
		fmt.Fprintln(out, warn("%d pair(s) of markers closer than %.0fm", len(a.Stacked), DuplicateDistance))
		for _, pair := range a.Stacked {
			fmt.Fprintf(out, "   %s / %s\n", pair[0].Label, pair[1].Label)
		}
	} else {
		fmt.Fprintln(out, ok("No stacked markers"))
	}
}

func printPlanAnalysis(out io.Writer, a PlanAnalysis) {
	fmt.Fprintf(out, "Plan items: %d\n", a.Items)
	if a.OrderGaps {
		fmt.Fprintln(out, warn("Orders are not 1..%d; import renumbers them", a.Items))
	}
	fmt.Fprintf(out, "Reused markers: %d\n", len(a.Reused))
	if len(a.Added) > 0 {
		fmt.Fprintln(out, warn("%d item(s) would be added as new markers: %s", len(a.Added), strings.Join(a.Added, ", ")))
	} else {
		fmt.Fprintln(out, ok("Every item matches a marker"))
	}
	fmt.Fprintf(out, "Walking distance: %.0fm\n", a.WalkMetres)
	if a.LongestLeg > 0 {
		fmt.Fprintf(out, "Longest leg: %s → %s (%.0fm)\n", a.LongestFrom, a.LongestTo, a.LongestLeg)
	}
}
