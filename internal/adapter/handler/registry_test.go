package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terraswarm/internal/domain"
)

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.AgentCostAnalysis, "cost_approach",
		func(_ context.Context, _ domain.Task) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		})

	fn, err := r.Resolve(domain.AgentCostAnalysis, "cost_approach")
	require.NoError(t, err)

	out, err := fn(context.Background(), domain.Task{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestResolveUnknownPair(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.AgentSecurity, "access_audit",
		func(_ context.Context, _ domain.Task) (json.RawMessage, error) { return nil, nil })

	cases := []struct {
		agentType domain.AgentType
		taskType  string
	}{
		{domain.AgentSecurity, "penetration_test"}, // known agent, unknown task
		{domain.AgentDesign, "access_audit"},       // unknown agent, known task
	}
	for _, c := range cases {
		_, err := r.Resolve(c.agentType, c.taskType)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUnknownHandler),
			"want ErrUnknownHandler for %s/%s", c.agentType, c.taskType)
	}
}

func TestTerraBuildCoversRosterTypes(t *testing.T) {
	r := NewTerraBuild()
	require.Greater(t, r.Len(), 0)

	pairs := []struct {
		agentType domain.AgentType
		taskType  string
	}{
		{domain.AgentDevelopment, "api_design"},
		{domain.AgentDesign, "chart_spec"},
		{domain.AgentDataAnalysis, "sales_ratio_study"},
		{domain.AgentCostAnalysis, "cost_approach"},
		{domain.AgentSecurity, "access_audit"},
		{domain.AgentDeployment, "release_rollout"},
	}
	for _, p := range pairs {
		_, err := r.Resolve(p.agentType, p.taskType)
		assert.NoErrorf(t, err, "missing handler %s/%s", p.agentType, p.taskType)
	}
}

func TestCannedHandlerEchoesParcelID(t *testing.T) {
	r := NewTerraBuild()
	fn, err := r.Resolve(domain.AgentCostAnalysis, "cost_approach")
	require.NoError(t, err)

	task := domain.Task{
		Type:    "cost_approach",
		Payload: json.RawMessage(`{"parcel_id":"12-0451-003","region":"north"}`),
	}
	out, err := fn(context.Background(), task)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, "12-0451-003", result["parcel_id"])
	assert.Equal(t, "north", result["region"])
	assert.Equal(t, "cost_approach", result["task_type"])
	assert.Contains(t, result, "indicated_value")
}

func TestCannedHandlerIgnoresMalformedPayload(t *testing.T) {
	r := NewTerraBuild()
	fn, err := r.Resolve(domain.AgentDataAnalysis, "regional_comparison")
	require.NoError(t, err)

	out, err := fn(context.Background(), domain.Task{Payload: json.RawMessage(`not json`)})
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))
	assert.NotContains(t, result, "parcel_id")
}
