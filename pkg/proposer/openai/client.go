// Package openai implements the proposer boundary on the official OpenAI
// Go package's Responses API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"codepilot/pkg/proposer"
	"codepilot/pkg/proto"
)

const defaultMaxTokens = 8192

// Client wraps the official OpenAI client (raw client, breaker and retry
// applied at a higher level).
type Client struct {
	client openai.Client
	model  string
}

func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *Client) Propose(ctx context.Context, req proposer.Request) (proposer.Proposal, error) {
	// The Responses API takes a single input string; fold the transcript
	// into labeled sections.
	var input string
	if req.System != "" {
		input += fmt.Sprintf("System: %s\n\n", req.System)
	}
	if req.PlanContext != "" {
		input += fmt.Sprintf("System: %s\n\n", req.PlanContext)
	}
	for _, m := range proposer.FlattenTurns(req.Turns) {
		if m.Role == "assistant" {
			input += fmt.Sprintf("Assistant: %s\n\n", m.Content)
		} else {
			input += m.Content + "\n\n"
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(maxTokens),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	if len(req.Tools) > 0 {
		tools := make([]responses.ToolUnionParam, len(req.Tools))
		for i := range req.Tools {
			t := &req.Tools[i]
			tools[i] = responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters: openai.FunctionParameters(map[string]any{
						"type":       "object",
						"properties": t.Parameters,
						"required":   t.Required,
					}),
				},
			}
		}
		params.Tools = tools
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return proposer.Proposal{}, fmt.Errorf("openai responses: %w", err)
	}
	if resp == nil {
		return proposer.Proposal{}, proposer.ErrEmptyResponse
	}

	out := proposer.Proposal{
		Text: resp.OutputText(),
		Usage: proposer.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		call := item.AsFunctionCall()
		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				continue
			}
		}
		out.Actions = append(out.Actions, proto.ActionRequest{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: args,
		})
	}
	if out.Text == "" && len(out.Actions) == 0 {
		return proposer.Proposal{}, proposer.ErrEmptyResponse
	}
	return out, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(defaultMaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
	})
	if err != nil {
		return "", fmt.Errorf("openai responses: %w", err)
	}
	if resp == nil || resp.OutputText() == "" {
		return "", proposer.ErrEmptyResponse
	}
	return resp.OutputText(), nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.model
}
