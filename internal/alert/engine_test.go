package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nodewatch/sentinel/internal/domain"
)

func thresholdCfg() Config {
	warn, crit := 85.0, 95.0
	return Config{
		ParentID: "chain-1",
		Thresholds: map[string]ThresholdRule{
			"system_cpu_usage": {
				Field: "system_cpu_usage", MetricCode: domain.MetricCode{Code: 100, Name: "SystemCPUUsage"},
				Direction: Above, Warning: &warn, Critical: &crit,
			},
		},
	}
}

func TestAlerter_Evaluate_CrossingWarningThenCriticalFires(t *testing.T) {
	a := NewAlerter()
	cfg := thresholdCfg()

	alerts := a.Evaluate(cfg, "chain-1", "system-1", 1000, map[string]domain.FieldDelta{
		"system_cpu_usage": {Current: 90.0},
	})
	assert.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityWarning, alerts[0].Severity)

	alerts = a.Evaluate(cfg, "chain-1", "system-1", 1001, map[string]domain.FieldDelta{
		"system_cpu_usage": {Current: 97.0},
	})
	assert.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
}

func TestAlerter_Evaluate_SameLevelDoesNotRepeat(t *testing.T) {
	a := NewAlerter()
	cfg := thresholdCfg()

	a.Evaluate(cfg, "chain-1", "system-1", 1000, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 90.0}})
	alerts := a.Evaluate(cfg, "chain-1", "system-1", 1001, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 91.0}})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ReturnToNormalEmitsInfo(t *testing.T) {
	a := NewAlerter()
	cfg := thresholdCfg()

	a.Evaluate(cfg, "chain-1", "system-1", 1000, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 90.0}})
	alerts := a.Evaluate(cfg, "chain-1", "system-1", 1001, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 10.0}})

	assert.Len(t, alerts, 1)
	assert.Equal(t, domain.SeverityInfo, alerts[0].Severity)
}

func TestAlerter_Evaluate_WindowDelaysConfirmation(t *testing.T) {
	a := NewAlerter()
	warn := 85.0
	cfg := Config{
		ParentID: "chain-1",
		Thresholds: map[string]ThresholdRule{
			"system_cpu_usage": {
				Field: "system_cpu_usage", MetricCode: domain.MetricCode{Code: 100, Name: "SystemCPUUsage"},
				Direction: Above, Warning: &warn, WarningWindow: 60,
			},
		},
	}

	alerts := a.Evaluate(cfg, "chain-1", "system-1", 1000, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 90.0}})
	assert.Empty(t, alerts, "should not fire before the window elapses")

	alerts = a.Evaluate(cfg, "chain-1", "system-1", 1030, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 90.0}})
	assert.Empty(t, alerts, "still within the window")

	alerts = a.Evaluate(cfg, "chain-1", "system-1", 1061, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 90.0}})
	assert.Len(t, alerts, 1)
}

func TestAlerter_EvaluateTransition_DownThenUp(t *testing.T) {
	a := NewAlerter()
	rule := TransitionRule{
		Field: "went_down_at", MetricCode: domain.MetricCode{Code: 103, Name: "SystemIsDown"},
		DownMessage: "system is no longer accessible", UpMessage: "system is accessible again",
	}

	down, fire := a.EvaluateTransition(rule, "chain-1", "system-1", 1000, domain.FieldDelta{Previous: nil, Current: 1000.0})
	assert.True(t, fire)
	assert.Equal(t, domain.SeverityError, down.Severity)

	up, fire := a.EvaluateTransition(rule, "chain-1", "system-1", 1100, domain.FieldDelta{Previous: 1000.0, Current: nil})
	assert.True(t, fire)
	assert.Equal(t, domain.SeverityInfo, up.Severity)
}

func TestAlerter_EvaluateTransition_ResolutionWithoutPriorAlertIsSuppressed(t *testing.T) {
	a := NewAlerter()
	rule := TransitionRule{
		Field: "went_down_at", MetricCode: domain.MetricCode{Code: 103, Name: "SystemIsDown"},
		DownMessage: "down", UpMessage: "up",
	}

	_, fire := a.EvaluateTransition(rule, "chain-1", "system-1", 1000, domain.FieldDelta{Previous: 900.0, Current: nil})
	assert.False(t, fire)
}

func TestAlerter_Evaluate_SameRoundAboveWinsOverBelow(t *testing.T) {
	a := NewAlerter()
	warnAbove, warnBelow := 85.0, 10.0
	cfg := Config{
		ParentID: "chain-1",
		Thresholds: map[string]ThresholdRule{
			"metric_a": {
				Field: "metric_a", MetricCode: domain.MetricCode{Code: 900, Name: "SameIdentity"},
				Direction: Above, Warning: &warnAbove,
			},
			"metric_b": {
				Field: "metric_b", MetricCode: domain.MetricCode{Code: 900, Name: "SameIdentity"},
				Direction: Below, Warning: &warnBelow,
			},
		},
	}

	alerts := a.Evaluate(cfg, "chain-1", "origin-1", 1000, map[string]domain.FieldDelta{
		"metric_a": {Current: 90.0},
		"metric_b": {Current: 5.0},
	})
	if assert.Len(t, alerts, 1) {
		assert.Contains(t, alerts[0].Message, "metric_a")
	}
}

func TestAlerter_PurgeOrigin_DropsOnlyMatchingStates(t *testing.T) {
	a := NewAlerter()
	cfg := thresholdCfg()

	a.Evaluate(cfg, "chain-1", "system-1", 1000, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 90.0}})
	a.Evaluate(cfg, "chain-1", "system-2", 1000, map[string]domain.FieldDelta{"system_cpu_usage": {Current: 90.0}})

	a.PurgeOrigin("system-1")

	assert.Len(t, a.states, 1)
	for id := range a.states {
		assert.True(t, id.HasOrigin("system-2"))
	}
}
