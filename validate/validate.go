// Command validate checks park configurations and marker/plan files before
// they are served. It checks:
//   - Park configs (JSON or YAML): required fields, tile template
//     placeholders, zoom range, initial view inside max_bounds
//   - Park configs: default datasets exist in the data directory and parse
//   - Marker files: the structure an import would accept, plus items an
//     import would skip or coerce (out-of-range coordinates, unknown types)
//   - Plan files: the structure an import would accept, plus duplicate orders
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/parkplanner/geo"
	"github.com/wricardo/mcp-training/parkplanner/planner/codec"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
)

var errInvalidFiles = errors.New("some files have errors")

// FileKind is what a validated file was recognized as
type FileKind string

const (
	KindParkConfig FileKind = "park config"
	KindMarkers    FileKind = "markers"
	KindPlan       FileKind = "plan"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Kind   FileKind
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, a ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, a...))
}

func (r *ValidationResult) info(format string, a ...any) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, a...))
}

func (r *ValidationResult) warn(format string, a ...any) {
	r.Errors = append(r.Errors, "! "+fmt.Sprintf(format, a...))
}

// detectKind sniffs the file. YAML files and JSON objects without a
// markers or plan array are treated as park configs.
func detectKind(path string, data []byte) FileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return KindParkConfig
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return KindParkConfig
	}
	if _, ok := root["markers"]; ok {
		return KindMarkers
	}
	if _, ok := root["plan"]; ok {
		return KindPlan
	}
	return KindParkConfig
}

// validateFile reads and validates one file. dataDir is where a park
// config's default datasets are looked up; empty skips that check.
func validateFile(filePath, dataDir string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	result.Kind = detectKind(filePath, data)
	switch result.Kind {
	case KindMarkers:
		validateMarkers(&result, data)
	case KindPlan:
		validatePlan(&result, data)
	default:
		validateParkConfig(&result, filePath, data, dataDir)
	}
	return result
}

func validateParkConfig(result *ValidationResult, path string, data []byte, dataDir string) {
	park, err := config.Decode(path, data)
	if err != nil {
		result.fail("%s", strings.TrimPrefix(err.Error(), config.ErrInvalidConfig.Error()+": "))
		return
	}

	if dataDir != "" {
		for _, name := range park.DefaultMarkers {
			checkDataset(result, dataDir, name, codec.ParseMarkers)
		}
		if park.DefaultPlan != "" {
			checkDataset(result, dataDir, park.DefaultPlan, codec.ParsePlan)
		}
	}

	if result.Valid {
		result.info("Name: %s", park.Name)
		result.info("Zoom: %d-%d (initial %d)", park.MinZoom, park.MaxZoom, park.InitialView.Zoom)
		if b := park.MaxBounds; b != nil {
			result.info("Bounds: %.4f,%.4f to %.4f,%.4f", b.SouthWest.Lat, b.SouthWest.Lng, b.NorthEast.Lat, b.NorthEast.Lng)
		}
		result.info("Default datasets: %d marker file(s), plan %q", len(park.DefaultMarkers), park.DefaultPlan)
	}
}

// checkDataset parses a default dataset. A missing file is only a warning:
// sessions load whatever datasets are available.
func checkDataset[T any](result *ValidationResult, dataDir, name string, parse func([]byte) (T, error)) {
	data, err := os.ReadFile(filepath.Join(dataDir, name))
	if errors.Is(err, os.ErrNotExist) {
		result.warn("Default dataset %s not found in %s", name, dataDir)
		return
	}
	if err != nil {
		result.fail("Failed to read default dataset %s: %v", name, err)
		return
	}
	if _, err := parse(data); err != nil {
		result.fail("Default dataset %s: %s", name, reason(err))
	}
}

func validateMarkers(result *ValidationResult, data []byte) {
	doc, err := codec.ParseMarkers(data)
	if err != nil {
		result.fail("%s", reason(err))
		return
	}

	skipped := 0
	unknown := map[string]int{}
	for _, m := range doc.Markers {
		if !geo.InRange(m.Lat, m.Lng) {
			skipped++
			continue
		}
		if _, ok := engine.ParseCategory(m.Type); !ok && m.Type != "" {
			unknown[m.Type]++
		}
	}

	if skipped > 0 {
		result.warn("%d marker(s) with out-of-range coordinates will be skipped", skipped)
	}
	for t, n := range unknown {
		result.warn("Unknown type %q on %d marker(s) imports as misc", t, n)
	}
	if doc.Count != 0 && doc.Count != len(doc.Markers) {
		result.warn("count is %d but the file has %d markers", doc.Count, len(doc.Markers))
	}
	result.info("Markers: %d", len(doc.Markers)-skipped)
}

func validatePlan(result *ValidationResult, data []byte) {
	doc, err := codec.ParsePlan(data)
	if err != nil {
		result.fail("%s", reason(err))
		return
	}

	seen := map[int]bool{}
	for _, item := range doc.Plan {
		if !geo.InRange(item.Lat, item.Lng) {
			result.warn("Plan item %d has out-of-range coordinates and will be skipped", item.Order)
		}
		if seen[item.Order] {
			result.warn("Order %d appears more than once; file order breaks the tie", item.Order)
		}
		seen[item.Order] = true
	}
	if doc.Count != 0 && doc.Count != len(doc.Plan) {
		result.warn("count is %d but the file has %d items", doc.Count, len(doc.Plan))
	}
	result.info("Plan items: %d", len(doc.Plan))
}

// reason unwraps the import rejection text shown to users
func reason(err error) string {
	var ve *engine.ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}

// defaultFiles lists park configs and data files when no arguments are given
func defaultFiles(configDir, dataDir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{
		filepath.Join(configDir, "*.json"),
		filepath.Join(configDir, "*.yaml"),
		filepath.Join(configDir, "*.yml"),
		filepath.Join(dataDir, "*.json"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("error finding files: %w", err)
		}
		files = append(files, matches...)
	}
	return files, nil
}

// report prints each result and returns whether all of them are valid
func report(out io.Writer, results []ValidationResult) bool {
	valid := color.New(color.FgGreen).Sprint("✅ VALID")
	invalid := color.New(color.FgRed).Sprint("❌ INVALID")

	allValid := true
	for _, result := range results {
		fmt.Fprintf(out, "\n%s %s (%s)\n", strings.Repeat("=", 20), result.File, result.Kind)

		if result.Valid {
			fmt.Fprintln(out, valid)
			for _, info := range result.Errors {
				if strings.HasPrefix(info, "!") {
					info = color.New(color.FgYellow).Sprint(info)
				}
				fmt.Fprintln(out, "  "+info)
			}
			continue
		}

		fmt.Fprintln(out, invalid)
		allValid = false
		for _, err := range result.Errors {
			if !strings.HasPrefix(err, "✓") {
				fmt.Fprintln(out, "  ❌ "+err)
			}
		}
	}

	fmt.Fprintf(out, "\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Fprintln(out, color.New(color.FgGreen).Sprint("✅ All files are valid!"))
	} else {
		fmt.Fprintln(out, color.New(color.FgRed).Sprint("❌ Some files have errors"))
	}
	return allValid
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("no-color") {
		color.NoColor = true
	}
	out := cmd.Writer
	if out == nil {
		out = os.Stdout
	}

	dataDir := cmd.String("data-dir")
	files := cmd.Args().Slice()
	if len(files) == 0 {
		var err error
		if files, err = defaultFiles(cmd.String("config-dir"), dataDir); err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to validate")
	}

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		results = append(results, validateFile(file, dataDir))
	}
	if !report(out, results) {
		return errInvalidFiles
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:      "validate",
		Usage:     "Validate park configurations, marker files and plan files",
		ArgsUsage: "[file ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing park configurations"},
			&cli.StringFlag{Name: "data-dir", Value: "data", Usage: "Directory containing default datasets"},
			&cli.BoolFlag{Name: "no-color", Usage: "Disable colored output"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errInvalidFiles) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
