package automation

import (
	"testing"
)

func testOutputs() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"card": map[string]interface{}{
				"title":    "Fix login bug",
				"priority": float64(2),
				"tags":     []interface{}{"bug", "auth"},
			},
			"from_stage_id": "s1",
		},
		{
			"previous_value": "low",
			"ok":             true,
		},
	}
}

func TestProcessValue_TriggerPath(t *testing.T) {
	p := NewPlaceholderProcessor(nil)

	got := p.ProcessValue("Card: {{trigger.card.title}}", testOutputs())
	if got != "Card: Fix login bug" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestProcessValue_StepOutputAndNumbers(t *testing.T) {
	p := NewPlaceholderProcessor(nil)
	outs := testOutputs()

	if got := p.ProcessValue("was {{step_1.previous_value}}", outs); got != "was low" {
		t.Fatalf("unexpected step output: %q", got)
	}
	// 整数浮点渲染不带 .0
	if got := p.ProcessValue("{{trigger.card.priority}}", outs); got != "2" {
		t.Fatalf("expected 2, got %q", got)
	}
	if got := p.ProcessValue("{{step_1.ok}}", outs); got != "true" {
		t.Fatalf("expected true, got %q", got)
	}
}

func TestProcessValue_ArrayIndexing(t *testing.T) {
	p := NewPlaceholderProcessor(nil)

	if got := p.ProcessValue("{{trigger.card.tags[1]}}", testOutputs()); got != "auth" {
		t.Fatalf("unexpected index result: %q", got)
	}
	// 越界下标解析为空串
	if got := p.ProcessValue("{{trigger.card.tags[5]}}", testOutputs()); got != "" {
		t.Fatalf("expected empty for out-of-range index, got %q", got)
	}
}

func TestProcessValue_MissingAndOutOfRange(t *testing.T) {
	p := NewPlaceholderProcessor(nil)
	outs := testOutputs()

	if got := p.ProcessValue("{{trigger.card.nope}}", outs); got != "" {
		t.Fatalf("expected empty for missing path, got %q", got)
	}
	// 引用未执行的步骤
	if got := p.ProcessValue("{{step_9.anything}}", outs); got != "" {
		t.Fatalf("expected empty for out-of-range step, got %q", got)
	}
	// 无占位符的字符串原样返回
	if got := p.ProcessValue("plain text", outs); got != "plain text" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestProcessData_NestedAndNonStringLeaves(t *testing.T) {
	p := NewPlaceholderProcessor(nil)
	data := map[string]interface{}{
		"message": "moved from {{trigger.from_stage_id}}",
		"count":   float64(3),
		"nested": map[string]interface{}{
			"title": "{{trigger.card.title}}",
		},
		"list": []interface{}{"{{step_1.previous_value}}", float64(1)},
	}

	out := p.ProcessData(data, testOutputs())

	if out["message"] != "moved from s1" {
		t.Fatalf("unexpected message: %v", out["message"])
	}
	if out["count"] != float64(3) {
		t.Fatalf("non-string leaf should pass through, got %v", out["count"])
	}
	nested := out["nested"].(map[string]interface{})
	if nested["title"] != "Fix login bug" {
		t.Fatalf("unexpected nested resolution: %v", nested["title"])
	}
	list := out["list"].([]interface{})
	if list[0] != "low" || list[1] != float64(1) {
		t.Fatalf("unexpected list resolution: %v", list)
	}
	// 原始数据不被修改
	if data["message"] != "moved from {{trigger.from_stage_id}}" {
		t.Fatalf("input was mutated: %v", data["message"])
	}
}

func TestProcessData_Idempotent(t *testing.T) {
	p := NewPlaceholderProcessor(nil)
	data := map[string]interface{}{"v": "{{trigger.card.title}}"}

	once := p.ProcessData(data, testOutputs())
	twice := p.ProcessData(once, testOutputs())
	if once["v"] != twice["v"] {
		t.Fatalf("resolution not idempotent: %v vs %v", once["v"], twice["v"])
	}
}
