package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/parkplanner/planner/config"
	"github.com/wricardo/mcp-training/parkplanner/planner/engine"
	"github.com/wricardo/mcp-training/parkplanner/planner/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Park Planner",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Park Planner - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Markers are points of interest on a theme park map (food, ride, show, shop,
restroom, service, photo, misc). The trip plan is an ordered list of markers
to visit. Every session has its own markers, plan, view mode and filter.

AVAILABLE TOOLS:
- create_session / list_sessions / get_session / delete_session
- get_view: Current list and counters
- place_marker, rename_marker, set_marker_type, move_marker, remove_marker, clear_markers
- add_to_plan, remove_from_plan, move_plan_item, clear_plan, save_plan
- set_mode, set_filter
- export_markers, export_plan, export_geojson, import_markers, import_plan, load_defaults
- list_parks, get_park, tile_plan
- planner_instructions: How the planner behaves`),
	)

	c.registerTools()
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

var sessionProp = prop("string", "Session ID")

var markerProp = prop("string", "Marker ID (e.g. m1)")

// sessionTool declares a tool that acts on one session
func sessionTool(name, description string, props map[string]any, required ...string) mcp.Tool {
	properties := map[string]any{"session_id": sessionProp}
	for k, v := range props {
		properties[k] = v
	}
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   append([]string{"session_id"}, required...),
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new planning session for a park",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"park": prop("string", "Name of the park config to use (optional)"),
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active planning sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(sessionTool("get_session", "Get details of a specific session", nil), c.handleGetSession)
	c.mcpServer.AddTool(sessionTool("delete_session", "Delete a session", nil), c.handleDeleteSession)
	c.mcpServer.AddTool(sessionTool("get_view", "Get the current list, mode, filter and counters", nil), c.handleGetView)

	// Markers
	c.mcpServer.AddTool(sessionTool("place_marker", "Place a marker at a map position", map[string]any{
		"lat":      prop("number", "Latitude"),
		"lng":      prop("number", "Longitude"),
		"label":    prop("string", "Label (optional, defaults to 'Marker N')"),
		"category": prop("string", "Category: food, ride, show, shop, restroom, service, photo or misc (optional)"),
	}, "lat", "lng"), c.handlePlaceMarker)

	c.mcpServer.AddTool(sessionTool("rename_marker", "Change the label of a marker", map[string]any{
		"marker_id": markerProp,
		"label":     prop("string", "New label; blank keeps the current one"),
	}, "marker_id", "label"), c.handleRenameMarker)

	c.mcpServer.AddTool(sessionTool("set_marker_type", "Change the category of a marker", map[string]any{
		"marker_id": markerProp,
		"category":  prop("string", "food, ride, show, shop, restroom, service, photo or misc"),
	}, "marker_id", "category"), c.handleRetypeMarker)

	c.mcpServer.AddTool(sessionTool("move_marker", "Move a marker to a new position", map[string]any{
		"marker_id": markerProp,
		"lat":       prop("number", "Latitude"),
		"lng":       prop("number", "Longitude"),
	}, "marker_id", "lat", "lng"), c.handleMoveMarker)

	c.mcpServer.AddTool(sessionTool("remove_marker", "Remove a marker, also from the plan", map[string]any{
		"marker_id": markerProp,
	}, "marker_id"), c.handleRemoveMarker)

	c.mcpServer.AddTool(sessionTool("clear_markers", "Remove every marker and empty the plan", nil), c.handleClearMarkers)

	// Plan
	c.mcpServer.AddTool(sessionTool("add_to_plan", "Append a marker to the trip plan", map[string]any{
		"marker_id": markerProp,
	}, "marker_id"), c.handleAddToPlan)

	c.mcpServer.AddTool(sessionTool("remove_from_plan", "Remove a marker from the trip plan", map[string]any{
		"marker_id": markerProp,
	}, "marker_id"), c.handleRemoveFromPlan)

	c.mcpServer.AddTool(sessionTool("move_plan_item", "Reorder the plan. Give either delta (-1 up, 1 down) or target_id (take that item's position).", map[string]any{
		"marker_id": markerProp,
		"delta":     prop("integer", "Positions to move; negative moves earlier"),
		"target_id": prop("string", "Marker whose position to take"),
	}, "marker_id"), c.handleMovePlanItem)

	c.mcpServer.AddTool(sessionTool("clear_plan", "Empty the trip plan", nil), c.handleClearPlan)
	c.mcpServer.AddTool(sessionTool("save_plan", "Save the trip plan so it survives a reload", nil), c.handleSavePlan)

	// View
	c.mcpServer.AddTool(sessionTool("set_mode", "Switch between the markers list and the plan list", map[string]any{
		"mode": map[string]any{"type": "string", "enum": []string{"markers", "plan"}, "description": "View mode"},
	}, "mode"), c.handleSetMode)

	c.mcpServer.AddTool(sessionTool("set_filter", "Show only markers of one category in markers mode", map[string]any{
		"filter": prop("string", "all, food, ride, show, shop, restroom, service, photo or misc"),
	}, "filter"), c.handleSetFilter)

	// Files
	c.mcpServer.AddTool(sessionTool("export_markers", "Export the markers as a JSON marker file", nil), c.handleExport("markers"))
	c.mcpServer.AddTool(sessionTool("export_plan", "Export the trip plan as a JSON plan file", nil), c.handleExport("plan"))
	c.mcpServer.AddTool(sessionTool("export_geojson", "Export the markers as a GeoJSON FeatureCollection", nil), c.handleExport("geojson"))

	c.mcpServer.AddTool(sessionTool("import_markers", "Import a marker file", map[string]any{
		"document": prop("string", `Marker file JSON: {"markers":[{"id","label","type","lat","lng"}]}`),
		"clear":    prop("boolean", "Replace existing markers (default true)"),
	}, "document"), c.handleImportMarkers)

	c.mcpServer.AddTool(sessionTool("import_plan", "Import a trip plan file", map[string]any{
		"document": prop("string", `Plan file JSON: {"plan":[{"order","id","label","type","lat","lng"}]}`),
	}, "document"), c.handleImportPlan)

	c.mcpServer.AddTool(sessionTool("load_defaults", "Load the default markers and plan for the session's park", nil), c.handleLoadDefaults)

	// Parks
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_parks",
		Description: "List available park configurations",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListParks)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_park",
		Description: "Get a park configuration",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"park": prop("string", "Park name"),
			},
			Required: []string{"park"},
		},
	}, c.handleGetPark)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tile_plan",
		Description: "Count the map tiles needed to use a park offline",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"park": prop("string", "Park name"),
				"zoom": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "Zoom levels (default: the park's range)",
				},
			},
			Required: []string{"park"},
		},
	}, c.handleTilePlan)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "planner_instructions",
		Description: "Explain how markers, the trip plan and the files behave",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handlePlannerInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

// apiError is the body of a failed API request
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (c *Client) apiCall(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}
	return c.do(ctx, method, path, reqBody, "application/json", result, false)
}

// upload posts a raw file. A 422 still decodes into result.
func (c *Client) upload(ctx context.Context, path, document string, result any) error {
	return c.do(ctx, "POST", path, strings.NewReader(document), "application/json", result, true)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, result any, acceptRejected bool) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rejected := acceptRejected && resp.StatusCode == http.StatusUnprocessableEntity
	if resp.StatusCode >= 400 && !rejected {
		var errResp apiError
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw, err = io.ReadAll(resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func sessionPath(args map[string]any, format string, a ...any) string {
	sessionID, _ := args["session_id"].(string)
	return "/api/sessions/" + url.PathEscape(sessionID) + fmt.Sprintf(format, a...)
}

func markerID(args map[string]any) string {
	id, _ := args["marker_id"].(string)
	return url.PathEscape(id)
}

// action calls a gesture endpoint and renders its result
func (c *Client) action(ctx context.Context, method, path string, body any) (*mcp.CallToolResult, error) {
	var result service.ActionResult
	if err := c.apiCall(ctx, method, path, body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatActionResult(&result)), nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	park, _ := arguments(request)["park"].(string)

	body := map[string]string{}
	if park != "" {
		body["park"] = park
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nPark: %s\n", session.ID, session.ParkName)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		fmt.Fprintf(&b, "- %s (Park: %s, Markers: %d, Plan: %d, Created: %s)\n",
			s.ID, s.ParkName, s.MarkerCount, s.PlanCount, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(arguments(request), ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Message string `json:"message"`
	}
	if err := c.apiCall(ctx, "DELETE", sessionPath(arguments(request), ""), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(response.Message), nil
}

func (c *Client) handleGetView(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var view engine.View
	if err := c.apiCall(ctx, "GET", sessionPath(arguments(request), "/view"), nil, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatView(&view)), nil
}

func (c *Client) handlePlaceMarker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := map[string]any{"lat": args["lat"], "lng": args["lng"]}
	for _, key := range []string{"label", "category"} {
		if v, ok := args[key].(string); ok && v != "" {
			body[key] = v
		}
	}
	return c.action(ctx, "POST", sessionPath(args, "/markers"), body)
}

func (c *Client) handleRenameMarker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	label, _ := args["label"].(string)
	return c.action(ctx, "PUT", sessionPath(args, "/markers/%s/label", markerID(args)), map[string]string{"label": label})
}

func (c *Client) handleRetypeMarker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	category, _ := args["category"].(string)
	return c.action(ctx, "PUT", sessionPath(args, "/markers/%s/category", markerID(args)), map[string]string{"category": category})
}

func (c *Client) handleMoveMarker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := map[string]any{"lat": args["lat"], "lng": args["lng"]}
	return c.action(ctx, "PUT", sessionPath(args, "/markers/%s/position", markerID(args)), body)
}

func (c *Client) handleRemoveMarker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	return c.action(ctx, "DELETE", sessionPath(args, "/markers/%s", markerID(args)), nil)
}

func (c *Client) handleClearMarkers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.action(ctx, "DELETE", sessionPath(arguments(request), "/markers"), nil)
}

func (c *Client) handleAddToPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	id, _ := args["marker_id"].(string)
	return c.action(ctx, "POST", sessionPath(args, "/plan"), map[string]string{"marker_id": id})
}

func (c *Client) handleRemoveFromPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	return c.action(ctx, "DELETE", sessionPath(args, "/plan/%s", markerID(args)), nil)
}

func (c *Client) handleMovePlanItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := map[string]any{}
	if target, ok := args["target_id"].(string); ok && target != "" {
		body["target_id"] = target
	} else if delta, ok := args["delta"].(float64); ok {
		body["delta"] = int(delta)
	}
	return c.action(ctx, "POST", sessionPath(args, "/plan/%s/move", markerID(args)), body)
}

func (c *Client) handleClearPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.action(ctx, "DELETE", sessionPath(arguments(request), "/plan"), nil)
}

func (c *Client) handleSavePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.action(ctx, "POST", sessionPath(arguments(request), "/plan/save"), nil)
}

func (c *Client) handleSetMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	mode, _ := args["mode"].(string)
	return c.action(ctx, "PUT", sessionPath(args, "/mode"), map[string]string{"mode": mode})
}

func (c *Client) handleSetFilter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	filter, _ := args["filter"].(string)
	return c.action(ctx, "PUT", sessionPath(args, "/filter"), map[string]string{"filter": filter})
}

// handleExport returns the exported file verbatim
func (c *Client) handleExport(kind string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var data []byte
		if err := c.apiCall(ctx, "GET", sessionPath(arguments(request), "/export/%s", kind), nil, &data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func (c *Client) handleImportMarkers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	document, _ := args["document"].(string)
	path := sessionPath(args, "/import/markers")
	if clear, ok := args["clear"].(bool); ok && !clear {
		path += "?clear=false"
	}
	return c.importFile(ctx, path, document)
}

func (c *Client) handleImportPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	document, _ := args["document"].(string)
	return c.importFile(ctx, sessionPath(args, "/import/plan"), document)
}

func (c *Client) importFile(ctx context.Context, path, document string) (*mcp.CallToolResult, error) {
	var result service.ImportResult
	if err := c.upload(ctx, path, document, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !result.Success {
		return mcp.NewToolResultError(result.Message), nil
	}
	return mcp.NewToolResultText(formatImportResult(&result)), nil
}

func (c *Client) handleLoadDefaults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var result service.DefaultsResult
	if err := c.apiCall(ctx, "POST", sessionPath(arguments(request), "/defaults"), nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	for _, msg := range result.Messages {
		b.WriteString(msg + "\n")
	}
	if result.View != nil {
		b.WriteString("\n" + formatView(result.View))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleListParks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var parks []config.ParkInfo
	if err := c.apiCall(ctx, "GET", "/api/parks", nil, &parks); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Parks:\n\n")
	for _, park := range parks {
		fmt.Fprintf(&b, "• %s (%s)\n  %s\n  Zoom: %d-%d\n\n",
			park.Name, park.ConfigID, park.Description, park.MinZoom, park.MaxZoom)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetPark(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := arguments(request)["park"].(string)

	var park config.ParkConfig
	if err := c.apiCall(ctx, "GET", "/api/parks/"+url.PathEscape(name), nil, &park); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", park.Name, park.Description)
	center := park.InitialView.Center
	fmt.Fprintf(&b, "Center: %.6f, %.6f (zoom %d)\n", center.Lat, center.Lng, park.InitialView.Zoom)
	fmt.Fprintf(&b, "Zoom range: %d-%d\n", park.MinZoom, park.MaxZoom)
	if bounds := park.MaxBounds; bounds != nil {
		fmt.Fprintf(&b, "Bounds: SW %.6f, %.6f NE %.6f, %.6f\n",
			bounds.SouthWest.Lat, bounds.SouthWest.Lng, bounds.NorthEast.Lat, bounds.NorthEast.Lng)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleTilePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	name, _ := args["park"].(string)

	path := "/api/parks/" + url.PathEscape(name) + "/tiles"
	if raw, ok := args["zoom"].([]any); ok && len(raw) > 0 {
		zooms := make([]string, 0, len(raw))
		for _, z := range raw {
			if f, ok := z.(float64); ok {
				zooms = append(zooms, fmt.Sprint(int(f)))
			}
		}
		path += "?zoom=" + strings.Join(zooms, ",")
	}

	var plan service.TilePlan
	if err := c.apiCall(ctx, "GET", path, nil, &plan); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString(plan.Message + "\n\n")
	for _, r := range plan.Ranges {
		fmt.Fprintf(&b, "zoom %d: x %d-%d, y %d-%d (%d tiles)\n",
			r.Zoom, r.MinX, r.MaxX, r.MinY, r.MaxY, (r.MaxX-r.MinX+1)*(r.MaxY-r.MinY+1))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handlePlannerInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Park Planner - Instructions

MARKERS:
• place_marker drops a marker at lat/lng. Without a label it is named "Marker N".
• Categories: food, ride, show, shop, restroom, service, photo, misc. Unknown types become misc.
• Marker IDs (m1, m2, ...) are never reused within a session.
• Removing a marker also removes it from the trip plan.

TRIP PLAN:
• add_to_plan appends a marker once; adding it again reports "Already in plan".
• move_plan_item with delta moves up (-1) or down (1); at the ends nothing changes.
• move_plan_item with target_id puts the item where the target was.
• save_plan keeps the plan for the next load_defaults.

VIEW:
• set_mode markers shows the marker list, filtered by set_filter.
• set_mode plan shows the plan in order; the filter does not apply there.

FILES:
• export_markers / import_markers use {"createdAt","count","markers":[...]}.
• export_plan / import_plan use {"createdAt","count","plan":[{"order",...}]}.
• A plan import reuses markers with the same id or within a few meters of an existing one.
• A rejected file leaves the session untouched.

DEFAULTS:
• load_defaults loads the park's default markers, then the saved plan or the default plan.`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", session.ID)
	fmt.Fprintf(&b, "Park: %s\n", session.ParkName)
	fmt.Fprintf(&b, "Created: %s\n", session.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Last accessed: %s\n", session.LastAccessedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Markers: %d, Plan: %d\n", session.MarkerCount, session.PlanCount)
	fmt.Fprintf(&b, "Mode: %s, Filter: %s\n", session.Mode, session.Filter)
	return b.String()
}

func formatActionResult(result *service.ActionResult) string {
	status := "✓"
	if !result.Success {
		status = "•"
	}
	text := fmt.Sprintf("%s %s\n", status, result.Message)
	if result.MarkerID != "" {
		text += fmt.Sprintf("Marker: %s\n", result.MarkerID)
	}
	if result.View != nil {
		text += "\n" + formatView(result.View)
	}
	return text
}

func formatImportResult(result *service.ImportResult) string {
	text := result.Message + "\n"
	if r := result.Report; r != nil && r.Skipped > 0 {
		text += fmt.Sprintf("Skipped: %d\n", r.Skipped)
	}
	if result.View != nil {
		text += "\n" + formatView(result.View)
	}
	return text
}

// formatView renders the side list the way a user would read it
func formatView(view *engine.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s", view.Mode)
	if view.Mode == engine.ModeMarkers {
		fmt.Fprintf(&b, ", Filter: %s", view.Filter)
	}
	fmt.Fprintf(&b, " | Markers: %d, Plan: %d\n", view.MarkerCount, view.PlanCount)

	if len(view.Rows) == 0 {
		if view.Placeholder != "" {
			b.WriteString(view.Placeholder + "\n")
		}
		return b.String()
	}
	for _, row := range view.Rows {
		if row.Order > 0 {
			fmt.Fprintf(&b, "%d. ", row.Order)
		} else {
			b.WriteString("- ")
		}
		fmt.Fprintf(&b, "[%s] %s (%s) %s\n", row.ID, row.Label, row.Category, row.Coords)
	}
	return b.String()
}
