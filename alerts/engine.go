package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/internal/metrics"
	"github.com/testpulse/testpulse/scoring"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID          string     `json:"id"`
	RuleName    string     `json:"rule_name"`
	Fingerprint string     `json:"fingerprint"`
	Severity    string     `json:"severity"`
	Message     string     `json:"message"`
	Value       float64    `json:"value"`
	FiredAt     time.Time  `json:"fired_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	State       string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against confidence results and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:fingerprint"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests
}

// New creates an Engine from the alerts configuration.
// An Engine with empty rules is valid — Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// SetRules replaces the rule set. Used by config hot reload; alerts already
// firing stay active until their condition clears under the new rules.
func (e *Engine) SetRules(rules []config.AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

func (e *Engine) currentRules() []config.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules
}

// Evaluate tests all configured rules against res.
// Alerts that fire are stored and webhook delivery is triggered
// asynchronously. Alerts that were firing but whose condition is now false
// are resolved.
func (e *Engine) Evaluate(res *scoring.Result) {
	rules := e.currentRules()
	if len(rules) == 0 {
		return
	}

	now := e.now()
	for _, rule := range rules {
		key := rule.Name + ":" + res.Fingerprint
		fires, value := evalCondition(rule.Condition, res)

		e.mu.Lock()

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if now.Sub(e.lastFire[key]) > cooldown {
				sev := rule.Severity
				if sev == "" {
					sev = "warning"
				}
				a := &Alert{
					ID:          fmt.Sprintf("%s:%s:%d", rule.Name, res.Fingerprint, now.UnixNano()),
					RuleName:    rule.Name,
					Fingerprint: res.Fingerprint,
					Severity:    sev,
					Value:       value,
					Message: fmt.Sprintf("[%s] %s fired on %s — %s = %.3f",
						sev, rule.Name, res.Fingerprint, rule.Condition, value),
					FiredAt: now,
					State:   "firing",
				}
				e.active[key] = a
				e.lastFire[key] = now
				alertCopy := *a
				e.mu.Unlock()

				metrics.AlertsFired.Inc()
				slog.Warn("alert fired",
					"rule", rule.Name,
					"fingerprint", res.Fingerprint,
					"value", value,
					"severity", sev,
				)
				go e.deliver(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		} else {
			if a, ok := e.active[key]; ok && a.State == "firing" {
				resolved := now
				a.State = "resolved"
				a.ResolvedAt = &resolved
				delete(e.active, key)

				e.history = append(e.history, a)
				if len(e.history) > maxHistoryLen {
					e.history = e.history[len(e.history)-maxHistoryLen:]
				}
				alertCopy := *a
				e.mu.Unlock()

				slog.Info("alert resolved",
					"rule", rule.Name,
					"fingerprint", res.Fingerprint,
				)
				go e.deliver(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}
