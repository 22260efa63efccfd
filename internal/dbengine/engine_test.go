package dbengine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/provider"
	"github.com/cathlab/stackcheck/internal/provider/providertest"
)

func TestEngineLLMPath(t *testing.T) {
	mock := &providertest.Mock{Responses: []provider.CompletionResponse{{
		Content: `{"action":"filter_by_spec","category":"microcatheter","filters":[{"field":"ID_in","operator":">=","value":0.021}],"store_as":"matches"}`,
		Usage:   provider.TokenUsage{PromptTokens: 40, CompletionTokens: 15, TotalTokens: 55},
	}}}

	e := NewEngine(mock, "main-model", slog.New(slog.DiscardHandler))
	result := e.Run(context.Background(), testCatalog(), Input{
		Query:      "what microcatheters have an ID of at least 0.021",
		Categories: []string{"microcatheter"},
	})

	if result.Status != engine.StatusComplete || result.Engine != EngineName {
		t.Fatalf("result = %+v", result)
	}
	if result.ResultType != ResultType || result.Confidence != 0.9 {
		t.Fatalf("result_type/confidence = %s/%v", result.ResultType, result.Confidence)
	}

	deviceList, _ := result.Data["device_list"].([]string)
	if len(deviceList) != 1 || deviceList[0] != "Headway 21" {
		t.Fatalf("device_list = %v", deviceList)
	}
	if summary, _ := result.Data["summary"].(string); !strings.Contains(summary, "Headway 21") {
		t.Fatalf("summary = %q", summary)
	}
	usage, _ := result.Data["token_usage"].(map[string]int)
	if usage["input_tokens"] != 40 || usage["output_tokens"] != 15 {
		t.Fatalf("token usage = %v", usage)
	}
}

func TestEngineFilterPathBypassesModel(t *testing.T) {
	mock := &providertest.Mock{}
	e := NewEngine(mock, "main-model", slog.New(slog.DiscardHandler))

	result := e.Run(context.Background(), testCatalog(), Input{
		Spec: &QuerySpec{Step: Step{
			Action:   "filter_by_spec",
			Category: "dac",
		}},
		Classification: map[string]any{"intent": "filtered_discovery"},
	})

	if result.Status != engine.StatusComplete {
		t.Fatalf("result = %+v", result)
	}
	if mock.CompleteCalls() != 0 {
		t.Fatalf("model called %d times on the filter path", mock.CompleteCalls())
	}
	deviceList, _ := result.Data["device_list"].([]string)
	if len(deviceList) != 1 || deviceList[0] != "Vecta 46" {
		t.Fatalf("device_list = %v", deviceList)
	}
	if result.Classification["intent"] != "filtered_discovery" {
		t.Fatalf("classification = %v", result.Classification)
	}
}

func TestEnginePlanningFailure(t *testing.T) {
	mock := &providertest.Mock{Errs: []error{errors.New("model unavailable")}}
	e := NewEngine(mock, "main-model", slog.New(slog.DiscardHandler))

	result := e.Run(context.Background(), testCatalog(), Input{Query: "anything"})
	if result.Status != engine.StatusError || result.Confidence != 0 {
		t.Fatalf("result = %+v", result)
	}
	if msg, _ := result.Data["error"].(string); !strings.Contains(msg, "query planning failed") {
		t.Fatalf("error = %q", msg)
	}
}

func TestSpecAgentPromptCarriesDeviceIDs(t *testing.T) {
	mock := &providertest.Mock{Responses: []provider.CompletionResponse{{
		Content: `{"action":"get_device_specs","device_ids":["10"],"store_as":"specs"}`,
	}}}
	agent := NewSpecAgent(mock, "main-model")

	spec, _, err := agent.Run(context.Background(), testCatalog(),
		"what is the ID of the Headway 21",
		[]device.Group{{ProductName: "Headway 21", IDs: []string{"10"}, ConicalCategory: "L3"}},
		nil)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Action != "get_device_specs" || len(spec.DeviceIDs) != 1 {
		t.Fatalf("spec = %+v", spec)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d", len(reqs))
	}
	prompt := reqs[0].Messages[0].Content
	if !strings.Contains(prompt, `"Headway 21": IDs=[10]`) {
		t.Fatalf("prompt missing device id info:\n%s", prompt)
	}
	if !strings.Contains(prompt, "category_type=microcatheter") {
		t.Fatalf("prompt missing category type:\n%s", prompt)
	}
}
