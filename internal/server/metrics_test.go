package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gotest.tools/v3/assert"

	"github.com/gristips/gristips/internal/ratelimit"
	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/models"
)

// gaugeValues returns the values of the gauge name, keyed by the value of
// label, or by "" when the gauge has no labels.
func gaugeValues(t *testing.T, s *Server, name, label string) map[string]float64 {
	t.Helper()
	families, err := s.metricsRegistry.Gather()
	assert.NilError(t, err)

	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == name {
			family = f
		}
	}
	assert.Assert(t, family != nil, "metric %s not found", name)

	values := map[string]float64{}
	for _, m := range family.GetMetric() {
		key := ""
		for _, l := range m.GetLabel() {
			if l.GetName() == label {
				key = l.GetValue()
			}
		}
		values[key] = m.GetGauge().GetValue()
	}
	return values
}

func TestSetupMetrics(t *testing.T) {
	s, _ := setupServer(t)

	agent := createUser(t, s.db, "sub-1", true)
	createUser(t, s.db, "sub-2", true)
	createUser(t, s.db, "sub-3", false)
	createSession(t, s.db, agent)
	storeGristKey(t, s, agent, "https://grist.example.gouv.fr")

	for _, a := range []models.Automation{
		{UserID: agent.ID, Name: "a", SourceDocID: "d", SourceTableID: "A", TargetDocID: "d", TargetTableID: "B", Schedule: models.ScheduleDaily},
		{UserID: agent.ID, Name: "b", SourceDocID: "d", SourceTableID: "A", TargetDocID: "d", TargetTableID: "C", Schedule: models.ScheduleDaily},
		{UserID: agent.ID, Name: "c", SourceDocID: "d", SourceTableID: "A", TargetDocID: "d", TargetTableID: "D"},
	} {
		a := a
		assert.NilError(t, data.CreateAutomation(s.db, &a))
	}

	assert.DeepEqual(t, gaugeValues(t, s, "gristips_users", "public_agent"), map[string]float64{"true": 2, "false": 1})
	assert.DeepEqual(t, gaugeValues(t, s, "gristips_grist_keys", ""), map[string]float64{"": 1})
	assert.DeepEqual(t, gaugeValues(t, s, "gristips_sessions", ""), map[string]float64{"": 1})
	assert.DeepEqual(t, gaugeValues(t, s, "gristips_automations", "schedule"), map[string]float64{"daily": 2, "manual": 1})
	assert.DeepEqual(t, gaugeValues(t, s, "build_info", ""), map[string]float64{"": 1})
}

func TestRateLimitDenialsMetric(t *testing.T) {
	s, _ := setupServer(t, func(t *testing.T, options *Options) {
		options.RateLimits.Login = ratelimit.Options{MaxRequests: 1, Window: time.Minute}
	})
	routes := s.GenerateRoutes()

	before := testutil.ToFloat64(rateLimitDenials.WithLabelValues(rateLimitLogin))

	for i := 0; i < 3; i++ {
		request(t, routes, http.MethodGet, "/api/auth/login", "", nil)
	}

	after := testutil.ToFloat64(rateLimitDenials.WithLabelValues(rateLimitLogin))
	assert.Equal(t, after-before, float64(2))
}
