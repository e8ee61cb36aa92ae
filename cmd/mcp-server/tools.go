package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/identity"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/planner"
	"github.com/gilby125/flight-connections/profile"
	"github.com/gilby125/flight-connections/savedroutes"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/text/language"
)

const defaultLookupLimit = 10

// toolset backs the MCP tools. session and syncer are nil when no identity
// is configured, in which case whoami is not registered.
type toolset struct {
	catalog *airports.Catalog
	session *identity.Session
	syncer  *profile.Syncer
	log     *logger.Logger
}

// PlanResult is returned by plan_route.
type PlanResult struct {
	planner.Summary
	URL        string   `json:"url"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// WhoAmIResult is returned by whoami.
type WhoAmIResult struct {
	User    *identity.User   `json:"user"`
	Profile *profile.Profile `json:"profile,omitempty"`
	Loading bool             `json:"loading"`
}

// newToolset loads the catalog from source. A failed load leaves the catalog
// empty and the tools report it as not loaded.
func newToolset(ctx context.Context, source airports.Source, log *logger.Logger) *toolset {
	catalog := airports.NewCatalog(source, log)
	if err := catalog.Load(ctx); err != nil {
		log.Error(err, "Serving without airport data")
	}
	return &toolset{catalog: catalog, log: log.Component("mcp")}
}

func (t *toolset) register(s *server.MCPServer) {
	planTool := mcp.NewTool("plan_route",
		mcp.WithDescription("Resolve a multi-stop route of airport codes and build its booking link"),
		mcp.WithString("codes",
			mcp.Required(),
			mcp.Description("Comma-separated IATA codes in travel order (e.g., JFK,LHR,CDG)"),
		),
		mcp.WithString("start_date",
			mcp.Description("First travel date (YYYY-MM-DD). Defaults to today."),
		),
		mcp.WithString("language",
			mcp.Description("BCP 47 language tag for the booking link (e.g., en, de). Default en."),
		),
	)
	s.AddTool(planTool, t.planRoute)

	lookupTool := mcp.NewTool("lookup_airport",
		mcp.WithDescription("Look up an airport by IATA code or search by name, city or country"),
		mcp.WithString("code",
			mcp.Description("Exact IATA code (e.g., SFO)"),
		),
		mcp.WithString("query",
			mcp.Description("Free text search. Ignored when code is given."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum search results (default 10)"),
		),
		mcp.WithBoolean("active_only",
			mcp.Description("Only airports with scheduled destinations. Default true."),
		),
	)
	s.AddTool(lookupTool, t.lookupAirport)

	if t.session != nil {
		whoamiTool := mcp.NewTool("whoami",
			mcp.WithDescription("Sign in with the configured identity token and return the user profile"),
		)
		s.AddTool(whoamiTool, t.whoami)
	}
}

func (t *toolset) planRoute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	argsMap, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments format"), nil
	}
	if !t.catalog.Loaded() {
		return mcp.NewToolResultError("Airport data is not loaded yet"), nil
	}

	codesStr, _ := argsMap["codes"].(string)
	var codes []string
	for _, code := range strings.Split(codesStr, ",") {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return mcp.NewToolResultError("codes is required"), nil
	}

	opts := []planner.Option{
		planner.WithLookup(t.catalog.ByIataActive()),
		planner.WithFallbackLookup(t.catalog.ByIataAll()),
	}
	if dateStr, _ := argsMap["start_date"].(string); dateStr != "" {
		d, err := planner.ParseDate(dateStr, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid start_date: %v", err)), nil
		}
		opts = append(opts, planner.WithStartDate(d))
	}
	if langStr, _ := argsMap["language"].(string); langStr != "" {
		tag, err := language.Parse(langStr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid language: %v", err)), nil
		}
		opts = append(opts, planner.WithLanguage(tag))
	}

	nav, err := planner.NewURLNavigator("/")
	if err != nil {
		return nil, err
	}
	seq := planner.NewSequencer(nav, opts...)
	seq.LoadRoute(savedroutes.SavedRoute{Codes: codes})

	all := t.catalog.ByIataAll()
	var unresolved []string
	for _, code := range codes {
		if _, found := all.Get(code); !found {
			unresolved = append(unresolved, code)
		}
	}
	if len(seq.Items()) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("None of the codes resolved: %s", strings.Join(codes, ","))), nil
	}

	t.log.Info("Route planned", "codes", seq.Codes(), "unresolved", len(unresolved))
	return jsonResult(PlanResult{Summary: seq.Summary(), URL: nav.URL(), Unresolved: unresolved})
}

func (t *toolset) lookupAirport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	argsMap, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments format"), nil
	}
	if !t.catalog.Loaded() {
		return mcp.NewToolResultError("Airport data is not loaded yet"), nil
	}

	activeOnly := true
	if v, ok := argsMap["active_only"].(bool); ok {
		activeOnly = v
	}

	if code, _ := argsMap["code"].(string); code != "" {
		code = strings.ToUpper(strings.TrimSpace(code))
		idx := t.catalog.ByIataAll()
		if activeOnly {
			idx = t.catalog.ByIataActive()
		}
		a, found := idx.Get(code)
		if !found {
			return mcp.NewToolResultError(fmt.Sprintf("Airport not found: %s", code)), nil
		}
		return jsonResult(a)
	}

	query, _ := argsMap["query"].(string)
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("Either code or query is required"), nil
	}
	limitVal, _ := argsMap["limit"].(float64)
	limit := int(limitVal)
	if limit <= 0 {
		limit = defaultLookupLimit
	}
	results := t.catalog.Search(query, limit, activeOnly)
	if results == nil {
		results = []airports.Airport{}
	}
	return jsonResult(results)
}

func (t *toolset) whoami(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := t.session.EnsureAuthenticated(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Sign-in failed: %v", err)), nil
	}
	result := WhoAmIResult{User: u}
	if t.syncer != nil {
		result.Profile = t.syncer.Profile()
		result.Loading = t.syncer.Loading()
	}
	return jsonResult(result)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
