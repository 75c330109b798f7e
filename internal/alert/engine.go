package alert

import (
	"fmt"
	"sync"

	"github.com/nodewatch/sentinel/internal/domain"
)

// Direction says which side of a threshold ladder counts as "breaching":
// Above ladders alert when the value rises past warning/critical (e.g. CPU
// usage), Below ladders alert when it falls past them (e.g. a balance).
type Direction int

const (
	Above Direction = iota
	Below
)

// ThresholdRule is one metric's warning/critical ladder, with optional
// "above threshold for T seconds" qualifiers (spec §4.4).
type ThresholdRule struct {
	Field          string
	MetricCode     domain.MetricCode
	Direction      Direction
	Warning        *float64
	Critical       *float64
	WarningWindow  float64 // seconds; 0 means alert immediately on crossing
	CriticalWindow float64
}

// level classifies a value against the ladder.
func (r ThresholdRule) level(value float64) domain.Severity {
	cmp := func(v, threshold float64) bool {
		if r.Direction == Above {
			return v >= threshold
		}
		return v <= threshold
	}
	if r.Critical != nil && cmp(value, *r.Critical) {
		return domain.SeverityCritical
	}
	if r.Warning != nil && cmp(value, *r.Warning) {
		return domain.SeverityWarning
	}
	return ""
}

func (r ThresholdRule) window(level domain.Severity) float64 {
	if level == domain.SeverityCritical {
		return r.CriticalWindow
	}
	return r.WarningWindow
}

// TransitionRule fires when an optional-timestamp field flips between nil
// and set, e.g. went_down_at (spec §4.4 transition rules / downtime rule).
// The resolution alert is emitted only if a non-INFO alert was previously
// observed for the identity (spec §4.4).
type TransitionRule struct {
	Field       string
	MetricCode  domain.MetricCode
	DownMessage string
	UpMessage   string
}

type ruleState struct {
	streakLevel domain.Severity
	since       float64
	confirmed   domain.Severity
}

// candidate is an alert not yet resolved against same-round precedence.
type candidate struct {
	identity  domain.Identity
	direction Direction
	alert     domain.Alert
}

// Alerter evaluates configured threshold and transition rules over a
// stream of transformed alert envelopes, deduplicating by alert identity
// and applying same-round above-wins-over-below precedence (spec §4.4).
type Alerter struct {
	mu     sync.Mutex
	states map[domain.Identity]*ruleState
}

// NewAlerter builds an empty Alerter.
func NewAlerter() *Alerter {
	return &Alerter{states: make(map[domain.Identity]*ruleState)}
}

// PurgeOrigin drops every dedup state belonging to originID. Called when a
// ComponentReset alert is observed for that origin, so a restarted
// component's fresh state cannot be compared against stale severities from
// before the reset (spec §4.2, §9 "ComponentReset alert as out-of-band
// purge signal").
func (a *Alerter) PurgeOrigin(originID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.states {
		if id.HasOrigin(originID) {
			delete(a.states, id)
		}
	}
}

// Evaluate runs cfg's rules over one round's changed fields for originID
// (under parentID), returning the alerts to publish this round, in no
// particular order.
func (a *Alerter) Evaluate(cfg Config, parentID, originID string, now float64, changed map[string]domain.FieldDelta) []domain.Alert {
	var candidates []candidate

	// Above ladders go first: rules sharing an identity share dedup state,
	// so the first one evaluated claims this round's severity.
	fields := make([]string, 0, len(cfg.Thresholds))
	for field, rule := range cfg.Thresholds {
		if rule.Direction == Above {
			fields = append([]string{field}, fields...)
		} else {
			fields = append(fields, field)
		}
	}

	for _, field := range fields {
		rule := cfg.Thresholds[field]
		delta, ok := changed[field]
		if !ok {
			continue
		}
		value, ok := asFloat(delta.Current)
		if !ok {
			continue
		}
		if c, ok := a.evaluateThreshold(rule, parentID, originID, now, value); ok {
			candidates = append(candidates, c)
		}
	}

	return resolvePrecedence(candidates)
}

// EvaluateTransition runs one transition rule over a single field's delta,
// independent of cfg.Thresholds (spec §4.4 downtime rule; also used for
// contract-retrieval / synced-source style up/down signals).
func (a *Alerter) EvaluateTransition(rule TransitionRule, parentID, originID string, now float64, delta domain.FieldDelta) (domain.Alert, bool) {
	identity := domain.NewIdentity(rule.MetricCode.Code, []string{originID})

	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.states[identity]
	if st == nil {
		st = &ruleState{}
		a.states[identity] = st
	}

	wentDown := delta.Previous == nil && delta.Current != nil
	recovered := delta.Previous != nil && delta.Current == nil

	switch {
	case wentDown:
		st.confirmed = domain.SeverityError
		return domain.Alert{
			Message:         rule.DownMessage,
			Severity:        domain.SeverityError,
			Timestamp:       now,
			ParentID:        parentID,
			OriginID:        originID,
			Metric:          rule.MetricCode,
			MetricStateArgs: []string{originID},
		}, true
	case recovered:
		wasAlerted := st.confirmed != "" && st.confirmed != domain.SeverityInfo
		st.confirmed = domain.SeverityInfo
		if !wasAlerted {
			return domain.Alert{}, false
		}
		return domain.Alert{
			Message:         rule.UpMessage,
			Severity:        domain.SeverityInfo,
			Timestamp:       now,
			ParentID:        parentID,
			OriginID:        originID,
			Metric:          rule.MetricCode,
			MetricStateArgs: []string{originID},
		}, true
	default:
		return domain.Alert{}, false
	}
}

func (a *Alerter) evaluateThreshold(rule ThresholdRule, parentID, originID string, now, value float64) (candidate, bool) {
	identity := domain.NewIdentity(rule.MetricCode.Code, []string{originID})

	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.states[identity]
	if st == nil {
		st = &ruleState{}
		a.states[identity] = st
	}

	level := rule.level(value)

	if level == "" {
		st.streakLevel = ""
		st.since = 0
		if st.confirmed != "" && st.confirmed != domain.SeverityInfo {
			st.confirmed = domain.SeverityInfo
			return candidate{
				identity:  identity,
				direction: oppositeOf(rule.Direction),
				alert: domain.Alert{
					Message:         fmt.Sprintf("%s for %s has returned to normal (%.4f)", rule.Field, originID, value),
					Severity:        domain.SeverityInfo,
					Timestamp:       now,
					ParentID:        parentID,
					OriginID:        originID,
					Metric:          rule.MetricCode,
					MetricStateArgs: []string{originID},
				},
			}, true
		}
		return candidate{}, false
	}

	if st.streakLevel != level {
		st.streakLevel = level
		st.since = now
	}

	if now-st.since < rule.window(level) {
		return candidate{}, false
	}
	if st.confirmed == level {
		return candidate{}, false
	}
	st.confirmed = level

	return candidate{
		identity:  identity,
		direction: rule.Direction,
		alert: domain.Alert{
			Message:         fmt.Sprintf("%s for %s has crossed the %s threshold: %.4f", rule.Field, originID, severityLabel(level), value),
			Severity:        level,
			Timestamp:       now,
			ParentID:        parentID,
			OriginID:        originID,
			Metric:          rule.MetricCode,
			MetricStateArgs: []string{originID},
		},
	}, true
}

// resolvePrecedence drops, for each identity present with both an Above and
// a Below candidate in the same round, the Below one (spec §4.4).
func resolvePrecedence(candidates []candidate) []domain.Alert {
	byIdentity := make(map[domain.Identity][]candidate)
	for _, c := range candidates {
		byIdentity[c.identity] = append(byIdentity[c.identity], c)
	}

	out := make([]domain.Alert, 0, len(candidates))
	for _, group := range byIdentity {
		hasAbove := false
		for _, c := range group {
			if c.direction == Above {
				hasAbove = true
				break
			}
		}
		for _, c := range group {
			if hasAbove && c.direction == Below {
				continue
			}
			out = append(out, c.alert)
		}
	}
	return out
}

func oppositeOf(d Direction) Direction {
	if d == Above {
		return Below
	}
	return Above
}

func severityLabel(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "critical"
	default:
		return "warning"
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
