package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"finboard/internal/infrastructure/backend"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// ContentKind tags the shape of a message body. It is decided once, when the
// message is created, and never re-evaluated.
type ContentKind int

const (
	PlainText ContentKind = iota
	Structured
)

func (k ContentKind) String() string {
	if k == Structured {
		return "structured"
	}
	return "plain_text"
}

// Content is either plain text or a structured analysis.
type Content struct {
	Kind     ContentKind
	Text     string
	Analysis *AnalysisPayload
}

// Text builds plain-text content.
func Text(s string) Content {
	return Content{Kind: PlainText, Text: s}
}

// String renders the content as a single string, for logs and plain views.
func (c Content) String() string {
	if c.Kind == Structured && c.Analysis != nil {
		return c.Analysis.Summary
	}
	return c.Text
}

// Metric is one key figure of an analysis.
type Metric struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// UnmarshalJSON accepts a bare string or an object with label/name and value.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = Metric{Label: s}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid metric: %w", err)
	}
	*m = Metric{
		Label: firstText(raw, "label", "name", "metric"),
		Value: firstText(raw, "value", "amount"),
	}
	return nil
}

// Analysis is the breakdown part of a structured reply.
type Analysis struct {
	KeyMetrics []Metric `json:"keyMetrics"`
	Insights   []string `json:"insights"`
}

func (a *Analysis) UnmarshalJSON(data []byte) error {
	var aux struct {
		KeyMetrics      []Metric `json:"keyMetrics"`
		KeyMetricsSnake []Metric `json:"key_metrics"`
		Insights        []string `json:"insights"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.KeyMetrics = aux.KeyMetrics
	if len(a.KeyMetrics) == 0 {
		a.KeyMetrics = aux.KeyMetricsSnake
	}
	a.Insights = aux.Insights
	return nil
}

// Recommendation is one suggested action.
type Recommendation struct {
	Priority       string `json:"priority"`
	Action         string `json:"action"`
	ExpectedImpact string `json:"expectedImpact"`
}

func (r *Recommendation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Recommendation{Action: s}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid recommendation: %w", err)
	}
	*r = Recommendation{
		Priority:       firstText(raw, "priority"),
		Action:         firstText(raw, "action", "title", "recommendation"),
		ExpectedImpact: firstText(raw, "expectedImpact", "expected_impact", "impact"),
	}
	return nil
}

// AnalysisPayload is a structured advisor reply.
type AnalysisPayload struct {
	Summary         string           `json:"summary,omitempty"`
	Analysis        *Analysis        `json:"analysis,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	ToolsUsed       []string         `json:"toolsUsed,omitempty"`
}

// structuredKeys mark an object reply as a structured analysis.
var structuredKeys = []string{"summary", "analysis", "recommendations"}

// Classify decides, once, how a reply is represented. An object carrying any
// of summary, analysis or recommendations is Structured; a JSON string is
// PlainText; anything else becomes PlainText of its compact JSON.
func Classify(raw json.RawMessage) Content {
	c, _ := classify(raw)
	return c
}

// classify also reports how many recommendations were dropped because they
// could not be decoded.
func classify(raw json.RawMessage) (Content, int) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Text(""), 0
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return Text(s), 0
		}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil && hasAny(fields, structuredKeys) {
			payload, dropped := decodePayload(fields)
			return Content{Kind: Structured, Analysis: payload}, dropped
		}
	}

	return Text(compact(raw)), 0
}

func decodePayload(fields map[string]json.RawMessage) (*AnalysisPayload, int) {
	var p AnalysisPayload
	dropped := 0

	if v, ok := fields["summary"]; ok {
		p.Summary = rawText(v)
	}
	if v, ok := fields["analysis"]; ok && !isNull(v) {
		var a Analysis
		if err := json.Unmarshal(v, &a); err != nil {
			// A free-text analysis becomes a single insight.
			a = Analysis{Insights: []string{rawText(v)}}
		}
		p.Analysis = &a
	}
	if v, ok := fields["recommendations"]; ok && !isNull(v) {
		p.Recommendations, dropped = decodeRecommendations(v)
	}
	for _, key := range []string{"toolsUsed", "tools_used"} {
		if v, ok := fields[key]; ok && len(p.ToolsUsed) == 0 {
			_ = json.Unmarshal(v, &p.ToolsUsed)
		}
	}
	return &p, dropped
}

// decodeRecommendations keeps every entry that decodes. A lone string or
// object stands for a one-item list.
func decodeRecommendations(v json.RawMessage) ([]Recommendation, int) {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		items = []json.RawMessage{v}
	}

	var out []Recommendation
	dropped := 0
	for _, item := range items {
		var r Recommendation
		if err := json.Unmarshal(item, &r); err != nil {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}

// ClassifyReply classifies an ask response, folding the envelope's tools into
// a structured payload that does not list its own.
func ClassifyReply(data backend.AskData) Content {
	c, _ := classifyReply(data)
	return c
}

func classifyReply(data backend.AskData) (Content, int) {
	c, dropped := classify(data.AgentResponse)
	if c.Kind == Structured && len(c.Analysis.ToolsUsed) == 0 && len(data.ToolsUsed) > 0 {
		c.Analysis.ToolsUsed = append([]string(nil), data.ToolsUsed...)
	}
	return c, dropped
}

// Message is one entry of the conversation.
type Message struct {
	ID          string
	Role        Role
	Content     Content
	Timestamp   time.Time
	Suggestions []string
}

func (m Message) clone() Message {
	if m.Suggestions != nil {
		m.Suggestions = append([]string(nil), m.Suggestions...)
	}
	if m.Content.Analysis != nil {
		a := *m.Content.Analysis
		m.Content.Analysis = &a
	}
	return m
}

func newMessage(role Role, content Content, at time.Time) Message {
	return Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}

// hydrate converts a persisted history entry. at is the already clamped
// timestamp to use. The count is of recommendations dropped as undecodable.
func hydrate(h backend.HistoryMessage, at time.Time) (Message, int) {
	role := parseRole(h.Type, h.Role)

	content, dropped := classify(h.Content)
	if content.Kind == Structured && len(content.Analysis.ToolsUsed) == 0 && len(h.ToolsUsed) > 0 {
		content.Analysis.ToolsUsed = append([]string(nil), h.ToolsUsed...)
	}

	id := h.ID
	if id == "" {
		id = ulid.Make().String()
	}
	return Message{ID: id, Role: role, Content: content, Timestamp: at}, dropped
}

func parseRole(values ...string) Role {
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "user", "human", "question":
			return RoleUser
		case "error":
			return RoleError
		case "assistant", "ai", "agent", "bot", "answer":
			return RoleAssistant
		}
	}
	return RoleAssistant
}

func hasAny(fields map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

func firstText(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok && !isNull(v) {
			return rawText(v)
		}
	}
	return ""
}

// rawText returns a JSON string's value, or the compact JSON of anything else.
func rawText(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return compact(v)
}

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}
