package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/mcp-training/parkplanner/api"
	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
	"github.com/wricardo/mcp-training/parkplanner/planner/session"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content, got none")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash to be trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "ab12", "park_name": "disneyland"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var info service.SessionInfo
	if err := client.apiCall(context.Background(), "GET", "/api/sessions/ab12", nil, &info); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if info.ID != "ab12" || info.ParkName != "disneyland" {
		t.Errorf("Unexpected session %+v", info)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	if err := client.apiCall(context.Background(), "GET", "/api/sessions", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error body", http.StatusNotFound, `{"error":"session not found: zz","code":404}`, "session not found: zz"},
		{"plain body", http.StatusInternalServerError, "Internal Server Error", "API error: 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewClient(server.URL).apiCall(context.Background(), "GET", "/api/sessions/zz", nil, nil)
			if err == nil {
				t.Fatal("Expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Expected %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestClient_handleMovePlanItem(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = map[string]any{}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(service.ActionResult{Success: true, Message: "Moved to position 1"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	result, _ := client.handleMovePlanItem(ctx, callRequest("move_plan_item", map[string]any{
		"session_id": "ab12", "marker_id": "m3", "delta": float64(-1),
	}))
	if gotPath != "/api/sessions/ab12/plan/m3/move" {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if gotBody["delta"] != float64(-1) {
		t.Errorf("Expected delta -1, got %v", gotBody)
	}
	if !strings.Contains(resultText(t, result), "✓ Moved to position 1") {
		t.Errorf("Unexpected result %s", resultText(t, result))
	}

	client.handleMovePlanItem(ctx, callRequest("move_plan_item", map[string]any{
		"session_id": "ab12", "marker_id": "m3", "target_id": "m1",
	}))
	if gotBody["target_id"] != "m1" || gotBody["delta"] != nil {
		t.Errorf("Expected a target move only, got %v", gotBody)
	}
}

func TestClient_importRejected(t *testing.T) {
	var gotBody, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody, gotQuery = string(data), r.URL.RawQuery
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(service.ImportResult{
			Success: false,
			Message: "Import failed: Missing markers array",
			Reason:  "Missing markers array",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleImportMarkers(context.Background(), callRequest("import_markers", map[string]any{
		"session_id": "ab12",
		"document":   `{"plan":[]}`,
		"clear":      false,
	}))
	if err != nil {
		t.Fatalf("handleImportMarkers failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected a tool error for a rejected file")
	}
	if text := resultText(t, result); text != "Import failed: Missing markers array" {
		t.Errorf("Unexpected message %q", text)
	}
	if gotBody != `{"plan":[]}` || gotQuery != "clear=false" {
		t.Errorf("Expected raw document with clear=false, got %q %q", gotBody, gotQuery)
	}
}

func TestFormatView(t *testing.T) {
	t.Run("plan rows are numbered", func(t *testing.T) {
		view := &engine.View{
			Mode:   engine.ModePlan,
			Filter: engine.FilterAll,
			Rows: []engine.ListRow{
				{ID: "m2", Label: "Space Mountain", Category: engine.Ride, Coords: "33.811300, -117.917000", Order: 1},
				{ID: "m1", Label: "Churros", Category: engine.Food, Coords: "33.810000, -117.919000", Order: 2},
			},
			MarkerCount: 2,
			PlanCount:   2,
		}
		result := formatView(view)

		expected := []string{
			"Mode: plan | Markers: 2, Plan: 2",
			"1. [m2] Space Mountain (ride) 33.811300, -117.917000",
			"2. [m1] Churros (food)",
		}
		for _, field := range expected {
			if !strings.Contains(result, field) {
				t.Errorf("Expected '%s' in formatted output, got: %s", field, result)
			}
		}
	})

	t.Run("empty list shows placeholder", func(t *testing.T) {
		view := &engine.View{Mode: engine.ModeMarkers, Filter: engine.Filter("food"), Placeholder: engine.PlaceholderMarkers}
		result := formatView(view)
		if !strings.Contains(result, "Filter: food") || !strings.Contains(result, engine.PlaceholderMarkers) {
			t.Errorf("Unexpected output: %s", result)
		}
	})
}

func TestClient_handlePlannerInstructions(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handlePlannerInstructions(context.Background(), callRequest("planner_instructions", nil))
	if err != nil {
		t.Fatalf("handlePlannerInstructions failed: %v", err)
	}

	text := resultText(t, result)
	for _, content := range []string{"MARKERS:", "TRIP PLAN:", "VIEW:", "FILES:", "DEFAULTS:"} {
		if !strings.Contains(text, content) {
			t.Errorf("Expected '%s' in instructions", content)
		}
	}
}

// TestClient_Integration drives the tools against a real API server
func TestClient_Integration(t *testing.T) {
	configs, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to create config manager: %v", err)
	}
	svc := service.NewPlannerService(session.NewManager(), configs)
	server := httptest.NewServer(api.NewServer(svc, nil))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	var info service.SessionInfo
	if err := client.apiCall(ctx, "POST", "/api/sessions", map[string]string{}, &info); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	sid := info.ID

	steps := []struct {
		tool    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]any
		want    string
	}{
		{"place_marker", client.handlePlaceMarker, map[string]any{"lat": 33.8121, "lng": -117.9190}, "Added Marker 1 (misc) at 33.812100, -117.919000"},
		{"place_marker", client.handlePlaceMarker, map[string]any{"lat": 33.8113, "lng": -117.9170, "label": "Space Mountain", "category": "ride"}, "Added Space Mountain (ride)"},
		{"rename_marker", client.handleRenameMarker, map[string]any{"marker_id": "m1", "label": "Churros"}, `Renamed to "Churros"`},
		{"set_marker_type", client.handleRetypeMarker, map[string]any{"marker_id": "m1", "category": "food"}, "Type set to food"},
		{"add_to_plan", client.handleAddToPlan, map[string]any{"marker_id": "m1"}, "Added to plan"},
		{"add_to_plan", client.handleAddToPlan, map[string]any{"marker_id": "m2"}, "Added to plan"},
		{"add_to_plan", client.handleAddToPlan, map[string]any{"marker_id": "m2"}, "Already in plan"},
		{"move_plan_item", client.handleMovePlanItem, map[string]any{"marker_id": "m2", "delta": float64(-1)}, "Moved to position 1"},
		{"set_mode", client.handleSetMode, map[string]any{"mode": "plan"}, "1. [m2] Space Mountain (ride)"},
		{"remove_marker", client.handleRemoveMarker, map[string]any{"marker_id": "m2"}, "1. [m1] Churros (food)"},
	}

	for _, step := range steps {
		args := map[string]any{"session_id": sid}
		for k, v := range step.args {
			args[k] = v
		}
		result, err := step.handler(ctx, callRequest(step.tool, args))
		if err != nil {
			t.Fatalf("%s failed: %v", step.tool, err)
		}
		if result.IsError {
			t.Fatalf("%s returned an error: %s", step.tool, resultText(t, result))
		}
		if text := resultText(t, result); !strings.Contains(text, step.want) {
			t.Errorf("%s: expected %q in:\n%s", step.tool, step.want, text)
		}
	}

	result, _ := client.handleExport("plan")(ctx, callRequest("export_plan", map[string]any{"session_id": sid}))
	var doc struct {
		Count int `json:"count"`
		Plan  []struct {
			Order int    `json:"order"`
			ID    string `json:"id"`
		} `json:"plan"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &doc); err != nil {
		t.Fatalf("Export is not JSON: %v", err)
	}
	if doc.Count != 1 || doc.Plan[0].ID != "m1" || doc.Plan[0].Order != 1 {
		t.Errorf("Unexpected plan export %+v", doc)
	}

	result, _ = client.handleRemoveMarker(ctx, callRequest("remove_marker", map[string]any{"session_id": sid, "marker_id": "m9"}))
	if result.IsError || !strings.Contains(resultText(t, result), "• Not found") {
		t.Errorf("Expected removing an unknown marker to be reported, got %s", resultText(t, result))
	}

	result, _ = client.handleGetSession(ctx, callRequest("get_session", map[string]any{"session_id": "nope"}))
	if !result.IsError {
		t.Error("Expected an unknown session to be a tool error")
	}
}
