package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver sends webhook notifications for a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = e.post(url, slackPayload(a))
		case "teams":
			err = e.post(url, teamsPayload(a))
		case "pagerduty":
			err = e.post(url, pagerdutyPayload(a))
		case "http":
			err = e.post(url, genericPayload(a))
		default:
			slog.Warn("alerts: unknown webhook type — skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"rule", a.RuleName,
				"state", a.State,
			)
		}
	}
}

// slackPayload renders a one-line Slack message. Firing and resolving use
// the same shape so channel history reads as a paired sequence.
func slackPayload(a *Alert) []byte {
	var text string
	if a.State == "resolved" {
		text = fmt.Sprintf("*[RESOLVED]* %s on `%s` cleared (last value %.3f)",
			a.RuleName, a.Fingerprint, a.Value)
	} else {
		text = fmt.Sprintf("*%s* %s on `%s`: value %.3f",
			severityLabel(a.Severity), a.RuleName, a.Fingerprint, a.Value)
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	return body
}

// teamsPayload renders a MessageCard with the alert broken out into facts
// so the card is scannable without opening the raw JSON.
func teamsPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("TestPulse alert: %s (%s)", a.RuleName, a.State),
		"text":       a.Message,
		"sections": []map[string]interface{}{{
			"facts": []map[string]string{
				{"name": "Test", "value": a.Fingerprint},
				{"name": "Value", "value": fmt.Sprintf("%.3f", a.Value)},
				{"name": "Severity", "value": a.Severity},
				{"name": "State", "value": a.State},
			},
		}},
	})
	return body
}

// pagerdutyPayload builds an Events API v2 event. The dedup key ties the
// resolve event back to the trigger so PagerDuty closes the same incident
// instead of opening a second one.
func pagerdutyPayload(a *Alert) []byte {
	action := "trigger"
	if a.State == "resolved" {
		action = "resolve"
	}
	body, _ := json.Marshal(map[string]interface{}{
		"event_action": action,
		"dedup_key":    a.RuleName + ":" + a.Fingerprint,
		"payload": map[string]interface{}{
			"summary":  a.Message,
			"source":   a.Fingerprint,
			"severity": pagerdutySeverity(a.Severity),
			"custom_details": map[string]interface{}{
				"rule":  a.RuleName,
				"value": a.Value,
			},
		},
	})
	return body
}

// genericPayload wraps the alert in an event envelope for plain HTTP
// receivers.
func genericPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"event": "alert." + a.State,
		"alert": a,
	})
	return body
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}

// pagerdutySeverity maps rule severities onto the values the Events API
// accepts (critical, error, warning, info).
func pagerdutySeverity(s string) string {
	switch s {
	case "critical", "warning", "info":
		return s
	default:
		return "warning"
	}
}
