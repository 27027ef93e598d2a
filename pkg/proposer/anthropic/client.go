// Package anthropic implements the proposer boundary on the Anthropic API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"codepilot/pkg/proposer"
	"codepilot/pkg/proto"
)

const defaultMaxTokens = 8192

// Client wraps the Anthropic SDK client (raw client, breaker and retry
// applied at a higher level).
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

func (c *Client) Propose(ctx context.Context, req proposer.Request) (proposer.Proposal, error) {
	flattened := proposer.FlattenTurns(req.Turns)
	if len(flattened) == 0 {
		return proposer.Proposal{}, fmt.Errorf("message list cannot be empty")
	}

	messages := make([]anthropic.MessageParam, 0, len(flattened))
	for _, m := range flattened {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}

	system := req.System
	if req.PlanContext != "" {
		system += "\n\n" + req.PlanContext
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for i := range req.Tools {
			t := &req.Tools[i]
			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: t.Parameters,
				Required:   t.Required,
			}
			tools = append(tools, anthropic.ToolUnionParamOfTool(schema, t.Name))
		}
		params.Tools = tools
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return proposer.Proposal{}, fmt.Errorf("anthropic: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return proposer.Proposal{}, proposer.ErrEmptyResponse
	}

	out := proposer.Proposal{
		Usage: proposer.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return proposer.Proposal{}, fmt.Errorf("parse tool input for %s: %w", toolUse.Name, err)
			}
			out.Actions = append(out.Actions, proto.ActionRequest{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", proposer.ErrEmptyResponse
	}
	var text string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text += resp.Content[i].AsText().Text
		}
	}
	return text, nil
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return string(c.model)
}
