package workflow

import (
	"reflect"
	"testing"
)

func TestNormalizer_Split(t *testing.T) {
	n := NewNormalizer("")

	tests := []struct {
		name           string
		text           string
		wantMethod     SplitMethod
		wantStructured map[string]any
		wantNarrative  string
	}{
		{
			name:           "marker after json",
			text:           "{\"产品名称\":\"饼干\",\"合规率\":\"75%\"}\n\n不规范内容总结报告\n1. 缺少生产日期",
			wantMethod:     MethodMarker,
			wantStructured: map[string]any{"产品名称": "饼干", "合规率": "75%"},
			wantNarrative:  "不规范内容总结报告\n1. 缺少生产日期",
		},
		{
			name:           "marker with unparseable prefix falls through to brace span",
			text:           "结果如下 {\"a\":1} 尾注 不规范内容总结报告 正文",
			wantMethod:     MethodBraceSpan,
			wantStructured: map[string]any{"a": float64(1)},
			wantNarrative:  "尾注 不规范内容总结报告 正文",
		},
		{
			name:           "brace span without marker",
			text:           "```json\n{\"x\":{\"y\":2}}\n```\n## Report",
			wantMethod:     MethodBraceSpan,
			wantStructured: map[string]any{"x": map[string]any{"y": float64(2)}},
			wantNarrative:  "```\n## Report",
		},
		{
			name:          "no braces",
			text:          "  plain report only\n",
			wantMethod:    MethodFallback,
			wantNarrative: "  plain report only\n",
		},
		{
			name:          "braces that are not json",
			text:          "see {not json} here",
			wantMethod:    MethodFallback,
			wantNarrative: "see {not json} here",
		},
		{
			name:          "json array is not an object",
			text:          "[1,2,3]",
			wantMethod:    MethodFallback,
			wantNarrative: "[1,2,3]",
		},
		{
			name:           "empty object is valid",
			text:           "{}",
			wantMethod:     MethodBraceSpan,
			wantStructured: map[string]any{},
			wantNarrative:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Split(tt.text)
			if got.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", got.Method, tt.wantMethod)
			}
			if !reflect.DeepEqual(got.Structured, tt.wantStructured) {
				t.Errorf("Structured = %#v, want %#v", got.Structured, tt.wantStructured)
			}
			if got.Narrative != tt.wantNarrative {
				t.Errorf("Narrative = %q, want %q", got.Narrative, tt.wantNarrative)
			}
		})
	}
}

func TestNormalizer_CustomMarker(t *testing.T) {
	n := NewNormalizer("## Findings")
	got := n.Split("{\"ok\":true}\n## Findings\nnone")
	if got.Method != MethodMarker {
		t.Fatalf("Method = %q, want marker", got.Method)
	}
	if got.Narrative != "## Findings\nnone" {
		t.Errorf("Narrative = %q", got.Narrative)
	}
}

func TestNormalizer_CandidateFields(t *testing.T) {
	n := NewNormalizer("")

	tests := []struct {
		name      string
		outputs   map[string]any
		wantField string
		wantText  string
	}{
		{"text wins", map[string]any{"answer": "b", "text": "a"}, "text", "a"},
		{"non-string used as json", map[string]any{"text": 42, "result": "r"}, "text", "42"},
		{"object field", map[string]any{"output": map[string]any{"a": 1}}, "output", ""},
		{"null skipped", map[string]any{"text": nil, "result": "r"}, "result", "r"},
		{"last candidate", map[string]any{"response": "z"}, "response", "z"},
		{"no candidate", map[string]any{"other": "x"}, "", ""},
		{"nil outputs", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.outputs)
			if got.SourceField != tt.wantField {
				t.Errorf("SourceField = %q, want %q", got.SourceField, tt.wantField)
			}
			if got.Narrative != tt.wantText {
				t.Errorf("Narrative = %q, want %q", got.Narrative, tt.wantText)
			}
			if tt.wantField == "" && (got.Method != MethodNone || got.Structured != nil) {
				t.Errorf("expected empty result, got %#v", got)
			}
		})
	}
}

func TestNormalizer_Idempotent(t *testing.T) {
	n := NewNormalizer("")
	text := "{\"总体评级\":\"B\"}不规范内容总结报告 x"
	first := n.Split(text)
	second := n.Split(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Split is not deterministic: %#v vs %#v", first, second)
	}
}

func TestNormalizer_ObjectFieldIsSplitAsJSON(t *testing.T) {
	got := NewNormalizer("").Normalize(map[string]any{"output": map[string]any{"总体评级": "A"}})
	if got.SourceField != "output" || got.Method != MethodBraceSpan {
		t.Fatalf("got field %q method %q", got.SourceField, got.Method)
	}
	if !reflect.DeepEqual(got.Structured, map[string]any{"总体评级": "A"}) {
		t.Errorf("Structured = %#v", got.Structured)
	}
}

func TestNormalizer_FallbackKeepsWholeText(t *testing.T) {
	text := "\n  未检测到结构化结果  \n"
	got := NewNormalizer("").Normalize(map[string]any{"text": text})
	if got.Narrative != text {
		t.Errorf("Narrative = %q, want the input unchanged", got.Narrative)
	}
}
