// Package google provides a model.Model backed by the Gemini API through the
// google.golang.org/genai SDK.
package google

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentstage/core"
	"github.com/hupe1980/agentstage/internal/util"
	"github.com/hupe1980/agentstage/model"
	"google.golang.org/genai"
)

// continuePrompt is sent when a request carries no conversation yet; the API
// rejects empty contents.
const continuePrompt = "Continue the conversation naturally."

// Options configure the Gemini adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
}

// Model wraps genai's GenerateContent behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:           model.DefaultGoogleModel,
		Temperature:     0.8,
		MaxOutputTokens: 512,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// NewFactory returns a model.Factory sharing one client across agents.
func NewFactory(client *genai.Client, optFns ...func(o *Options)) model.Factory {
	return func(modelID string) (model.Model, error) {
		fns := append(append([]func(o *Options){}, optFns...), func(o *Options) { o.Model = modelID })
		return NewModelFromClient(client, fns...), nil
	}
}

// Generate sends one GenerateContent request and emits the normalized response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, buildContents(req.Contents), m.buildConfig(req))
		if err != nil {
			errCh <- fmt.Errorf("gemini api error: %w", err)
			return
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			errCh <- fmt.Errorf("gemini returned no candidates")
			return
		}

		var parts []core.Part
		for i, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				parts = append(parts, core.TextPart{Text: part.Text})
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
					ID:        fmt.Sprintf("call_%d_%s", i, part.FunctionCall.Name),
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				}})
			}
		}

		content := core.Content{Role: core.RoleAssistant, Parts: parts}
		finish := model.FinishStop
		switch {
		case len(content.FunctionCalls()) > 0:
			finish = model.FinishToolCalls
		case resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens:
			finish = model.FinishLength
		}

		r := model.Response{Content: content, FinishReason: finish}
		if resp.UsageMetadata != nil {
			r.Usage = &model.TokenUsage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
		out <- r
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	temp := m.opts.Temperature
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: m.opts.MaxOutputTokens,
		Temperature:     &temp,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Instructions != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.Instructions}}}
	}
	if len(req.Tools) > 0 {
		config.Tools = convertTools(req.Tools)
	}
	return config
}

// buildContents maps normalized contents onto Gemini's user/model turns.
// Tool results are sent as user turns with FunctionResponse parts.
func buildContents(contents []core.Content) []*genai.Content {
	var out []*genai.Content
	for _, c := range contents {
		role := "user"
		if c.Role == core.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		for _, p := range c.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text != "" {
					parts = append(parts, &genai.Part{Text: part.Text})
				}
			case core.FunctionCallPart:
				var args map[string]any
				_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: part.FunctionCall.Name,
					Args: args,
				}})
			case core.FunctionResponsePart:
				fr := part.FunctionResponse
				resp := map[string]any{"result": fr.Response}
				if fr.Error != "" {
					resp = map[string]any{"error": fr.Error}
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					Name:     fr.Name,
					Response: resp,
				}})
			}
		}
		if len(parts) > 0 {
			out = append(out, &genai.Content{Role: role, Parts: parts})
		}
	}
	if len(out) == 0 {
		out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: continuePrompt}}})
	}
	return out
}

func convertTools(tools []model.ToolDefinition) []*genai.Tool {
	funcs := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		funcs[i] = &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  convertSchema(t.Function.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: funcs}}
}

// convertSchema maps the JSON schema subset used by tools onto genai.Schema.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{}
	if typeVal, ok := schema["type"].(string); ok {
		switch typeVal {
		case "string":
			result.Type = genai.TypeString
		case "number":
			result.Type = genai.TypeNumber
		case "integer":
			result.Type = genai.TypeInteger
		case "boolean":
			result.Type = genai.TypeBoolean
		case "array":
			result.Type = genai.TypeArray
		case "object":
			result.Type = genai.TypeObject
		}
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				result.Properties[name] = convertSchema(propMap)
			}
		}
	}
	if req := util.RequiredFields(schema); len(req) > 0 {
		result.Required = req
	}
	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = convertSchema(items)
	}
	return result
}

// Info returns metadata describing this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: "google",
		Backend:  model.BackendGoogle,
	}
}
