package chain

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cathlab/stackcheck/internal/device"
	"github.com/cathlab/stackcheck/internal/engine"
	"github.com/cathlab/stackcheck/internal/provider"
)

// EngineName is the identifier used on the result contract and by the
// planner.
const EngineName = "chain_engine"

// Input is everything the engine needs for one run. Prior carries results
// from earlier planned steps; a database-engine device list there becomes
// a virtual category with pre-resolved products.
type Input struct {
	Query          string
	Devices        map[string]DeviceRef
	Categories     []string
	Mappings       map[string]CategoryMapping
	Prior          []engine.Result
	FilterCategory string
}

// Engine is the sub-orchestrator for device compatibility questions:
// classify and build chains concurrently, evaluate every pairing, decide
// on follow-up analysis, roll up, and render the text summary.
type Engine struct {
	classifier *Classifier
	builder    *Builder
	log        *slog.Logger
}

func NewEngine(llm provider.Provider, classifierModel, builderModel string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		classifier: NewClassifier(llm, classifierModel),
		builder:    NewBuilder(llm, builderModel),
		log:        log,
	}
}

// resolveInput folds a prior database-engine device list into the
// category mappings as a virtual category with pre-resolved products, so
// the standard expansion path handles it.
func (e *Engine) resolveInput(in Input) Input {
	if len(in.Prior) == 0 {
		return in
	}
	dbResult := engine.FindPrior(in.Prior, "database_engine")
	if dbResult == nil {
		return in
	}
	deviceList := engine.StringList(dbResult.Data["device_list"])
	if len(deviceList) == 0 {
		return in
	}

	label := in.FilterCategory
	if label == "" {
		label = "db_filtered"
	}

	mappings := make(map[string]CategoryMapping, len(in.Mappings)+1)
	for k, v := range in.Mappings {
		mappings[k] = v
	}
	mappings[label] = CategoryMapping{
		DeviceCategories:  []string{},
		ConicalCategories: []string{},
		Products:          deviceList,
	}
	in.Mappings = mappings

	found := false
	for _, cat := range in.Categories {
		if cat == label {
			found = true
			break
		}
	}
	if !found {
		in.Categories = append(append([]string(nil), in.Categories...), label)
	}

	e.log.Info("resolved prior database result into virtual category",
		"category", label, "devices", len(deviceList))
	return in
}

// Run executes the full pipeline against the given catalog view. The
// result contract always comes back non-nil; LLM and structural failures
// produce an error result with confidence 0.
func (e *Engine) Run(ctx context.Context, db *device.Store, in Input) engine.Result {
	var usage provider.TokenUsage

	in = e.resolveInput(in)

	mappings := in.Mappings
	if len(in.Categories) > 0 {
		if len(mappings) == 0 {
			mappings = MapCategories(in.Categories)
		} else {
			var unmapped []string
			for _, cat := range in.Categories {
				if _, ok := mappings[cat]; !ok {
					unmapped = append(unmapped, cat)
				}
			}
			if len(unmapped) > 0 {
				merged := MapCategories(unmapped)
				for k, v := range mappings {
					merged[k] = v
				}
				mappings = merged
			}
		}
	}

	// Classification and chain construction are independent model calls.
	var (
		wg            sync.WaitGroup
		classification *Classification
		classifyUsage provider.TokenUsage
		classifyErr   error
		built         *BuilderResult
		buildUsage    provider.TokenUsage
		buildErr      error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		classification, classifyUsage, classifyErr = e.classifier.Run(ctx, in.Query, in.Devices, in.Categories)
	}()
	go func() {
		defer wg.Done()
		built, buildUsage, buildErr = e.builder.Run(ctx, BuilderInput{
			Query:      in.Query,
			Devices:    in.Devices,
			Categories: in.Categories,
			Mappings:   mappings,
		}, db)
	}()
	wg.Wait()

	usage.PromptTokens += classifyUsage.PromptTokens + buildUsage.PromptTokens
	usage.CompletionTokens += classifyUsage.CompletionTokens + buildUsage.CompletionTokens
	usage.TotalTokens += classifyUsage.TotalTokens + buildUsage.TotalTokens

	if classifyErr != nil {
		e.log.Warn("query classification failed", "error", classifyErr)
		classification = nil
	}
	if buildErr != nil {
		return e.errorResult("chain construction failed: "+buildErr.Error(), classification, usage)
	}
	if len(built.ChainsToCheck) == 0 {
		return e.errorResult("No valid chains could be generated", classification, usage)
	}

	devices := in.Devices
	if len(built.ExpandedDevices) > 0 {
		devices = built.ExpandedDevices
	}

	processed := ProcessChains(GenerateChainPairs(built.ChainsToCheck, devices, db, e.log))

	analyzer := NewAnalyzer(processed)
	summary := analyzer.Summary()

	decision := DecideNextAction(classification, summary)
	var subsets []SubsetResult
	if decision.Action == ActionRunSubsets {
		subsets = RunSubsets(built.ChainsToCheck, devices, db, e.log)
	}

	resultType := determineResultType(classification)
	textSummary := NewTextBuilder(summary, processed, subsets).Build(resultType)
	flat := Flatten(processed)

	confidence := 0.9
	if classification != nil && classification.Confidence > 0 {
		confidence = classification.Confidence
	}

	result := engine.Result{
		Status:     engine.StatusComplete,
		Engine:     EngineName,
		ResultType: resultType,
		Data: map[string]any{
			"chain_summary":   summary,
			"flat_data":       flat,
			"text_summary":    textSummary,
			"chains_tested":   built.ChainsToCheck,
			"decision":        decision,
			"subset_analysis": subsets,
			"token_usage": map[string]int{
				"input_tokens":  usage.PromptTokens,
				"output_tokens": usage.CompletionTokens,
			},
		},
		Classification: classification.Map(),
		Confidence:     confidence,
	}
	result.Quality = CheckQuality(in, summary, &result)
	return result
}

func (e *Engine) errorResult(msg string, classification *Classification, usage provider.TokenUsage) engine.Result {
	return engine.Result{
		Status:     engine.StatusError,
		Engine:     EngineName,
		ResultType: ResultCompatibilityCheck,
		Data: map[string]any{
			"error": msg,
			"token_usage": map[string]int{
				"input_tokens":  usage.PromptTokens,
				"output_tokens": usage.CompletionTokens,
			},
		},
		Classification: classification.Map(),
		Confidence:     0,
	}
}

// determineResultType maps the classification onto a rendering: an
// explicit sub_type wins, otherwise mode and structure decide.
func determineResultType(cls *Classification) string {
	if cls == nil {
		return ResultCompatibilityCheck
	}
	if cls.SubType != "" {
		switch sub := cls.SubType; sub {
		case "COMPATIBILITY_CHECK":
			return ResultCompatibilityCheck
		case "DEVICE_DISCOVERY":
			return ResultDeviceDiscovery
		case "STACK_VALIDATION":
			return ResultStackValidation
		default:
			return strings.ToLower(sub)
		}
	}
	if cls.QueryMode == "stack_validation" || cls.Structure == "multi_device" {
		return ResultStackValidation
	}
	if cls.QueryMode == "exploratory" || cls.QueryMode == "discovery" {
		return ResultDeviceDiscovery
	}
	return ResultCompatibilityCheck
}
