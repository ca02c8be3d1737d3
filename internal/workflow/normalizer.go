package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultReportMarker opens the narrative section of a workflow answer
const DefaultReportMarker = "不规范内容总结报告"

// candidateFields are checked in order for the workflow's text answer
var candidateFields = []string{"text", "result", "output", "content", "answer", "response"}

// SplitMethod records which strategy produced a NormalizedResult
type SplitMethod string

const (
	MethodNone      SplitMethod = "none"
	MethodMarker    SplitMethod = "marker"
	MethodBraceSpan SplitMethod = "brace_span"
	MethodFallback  SplitMethod = "fallback"
)

// NormalizedResult separates the machine-readable findings from the prose report
type NormalizedResult struct {
	Structured  map[string]any `json:"structured,omitempty"`
	Narrative   string         `json:"narrative"`
	SourceField string         `json:"source_field,omitempty"`
	Method      SplitMethod    `json:"method"`
}

type splitStrategy struct {
	method SplitMethod
	split  func(text string) (map[string]any, string, bool)
}

// Normalizer turns workflow outputs into a NormalizedResult
type Normalizer struct {
	strategies []splitStrategy
}

func NewNormalizer(marker string) *Normalizer {
	if marker == "" {
		marker = DefaultReportMarker
	}
	return &Normalizer{
		strategies: []splitStrategy{
			{method: MethodMarker, split: markerSplit(marker)},
			{method: MethodBraceSpan, split: braceSpanSplit},
			{method: MethodFallback, split: fallbackSplit},
		},
	}
}

// Normalize splits the first present candidate field. Non-string values are
// split as their JSON encoding. Outputs without one yield an empty result.
func (n *Normalizer) Normalize(outputs map[string]any) NormalizedResult {
	for _, field := range candidateFields {
		v, ok := outputs[field]
		if !ok || v == nil {
			continue
		}
		res := n.Split(fieldText(v))
		res.SourceField = field
		return res
	}
	return NormalizedResult{Method: MethodNone}
}

func fieldText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Split applies the strategies in order; the first that succeeds wins.
func (n *Normalizer) Split(text string) NormalizedResult {
	for _, s := range n.strategies {
		if structured, narrative, ok := s.split(text); ok {
			return NormalizedResult{Structured: structured, Narrative: narrative, Method: s.method}
		}
	}
	return NormalizedResult{Narrative: text, Method: MethodFallback}
}

func markerSplit(marker string) func(string) (map[string]any, string, bool) {
	return func(text string) (map[string]any, string, bool) {
		idx := strings.Index(text, marker)
		if idx < 0 {
			return nil, "", false
		}
		obj, ok := parseObject(strings.TrimSpace(text[:idx]))
		if !ok {
			return nil, "", false
		}
		return obj, strings.TrimSpace(text[idx:]), true
	}
}

func braceSpanSplit(text string) (map[string]any, string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, "", false
	}
	obj, ok := parseObject(text[start : end+1])
	if !ok {
		return nil, "", false
	}
	return obj, strings.TrimSpace(text[end+1:]), true
}

// fallbackSplit keeps the whole answer, untrimmed, as the narrative
func fallbackSplit(text string) (map[string]any, string, bool) {
	return nil, text, true
}

func parseObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
