package handler

import (
	"context"
	"encoding/json"
	"time"

	"terraswarm/internal/domain"
)

// NewTerraBuild builds the registry of canned TerraBuild handlers, one
// family per agent type. The handlers stand in for the platform's real
// assessment services: each echoes identifying payload fields (parcel
// ids, regions) back in a fixed-shape result so consumers can exercise
// the full task lifecycle without the backing services.
func NewTerraBuild() *Registry {
	r := NewRegistry()

	// development
	r.Register(domain.AgentDevelopment, "api_design", canned("api_design", map[string]any{
		"endpoints_reviewed": 12,
		"breaking_changes":   0,
	}))
	r.Register(domain.AgentDevelopment, "schema_migration", canned("schema_migration", map[string]any{
		"migrations_planned": 3,
		"reversible":         true,
	}))

	// design
	r.Register(domain.AgentDesign, "layout_review", canned("layout_review", map[string]any{
		"panels_reviewed": 8,
		"issues":          []string{"table overflow on narrow viewport"},
	}))
	r.Register(domain.AgentDesign, "chart_spec", canned("chart_spec", map[string]any{
		"chart":  "grouped-bar",
		"series": []string{"assessed_value", "market_value"},
	}))

	// data-analysis
	r.Register(domain.AgentDataAnalysis, "regional_comparison", canned("regional_comparison", map[string]any{
		"regions_compared": 4,
		"median_delta_pct": 6.2,
	}))
	r.Register(domain.AgentDataAnalysis, "sales_ratio_study", canned("sales_ratio_study", map[string]any{
		"sample_size":  418,
		"median_ratio": 0.94,
		"cod":          11.8,
	}))

	// cost-analysis
	r.Register(domain.AgentCostAnalysis, "cost_approach", canned("cost_approach", map[string]any{
		"rcn":              287500.0,
		"depreciation_pct": 18.5,
		"indicated_value":  234312.0,
	}))
	r.Register(domain.AgentCostAnalysis, "land_valuation", canned("land_valuation", map[string]any{
		"method":        "comparable-sales",
		"value_per_sqft": 4.35,
	}))

	// security
	r.Register(domain.AgentSecurity, "access_audit", canned("access_audit", map[string]any{
		"roles_reviewed": 6,
		"findings":       0,
	}))

	// deployment
	r.Register(domain.AgentDeployment, "release_rollout", canned("release_rollout", map[string]any{
		"strategy": "rolling",
		"stages":   []string{"staging", "canary", "production"},
	}))

	return r
}

// canned wraps a fixed result map into a HandlerFunc. Identifying
// payload fields are echoed so results stay traceable to their input.
func canned(taskType string, result map[string]any) domain.HandlerFunc {
	return func(_ context.Context, task domain.Task) (json.RawMessage, error) {
		out := map[string]any{
			"task_type":    taskType,
			"completed_at": time.Now().UTC().Format(time.RFC3339),
		}
		for k, v := range result {
			out[k] = v
		}
		for _, field := range []string{"parcel_id", "region", "scenario_id"} {
			if v, ok := payloadField(task.Payload, field); ok {
				out[field] = v
			}
		}
		return json.Marshal(out)
	}
}

// payloadField pulls one top-level field out of an opaque JSON payload.
func payloadField(payload json.RawMessage, field string) (any, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}
