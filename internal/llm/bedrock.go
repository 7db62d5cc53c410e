package llm

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockMaxTokens = 1024

// bedrockModel invokes Anthropic models hosted on AWS Bedrock.
type bedrockModel struct {
	client  *bedrockruntime.Client
	modelID string
}

func newBedrockModel(ctx context.Context, region, modelID string) (*bedrockModel, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &bedrockModel{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
	}, nil
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockResponse struct {
	Content []bedrockBlock `json:"content"`
}

func (b *bedrockModel) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        bedrockMaxTokens,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockBlock{{Type: "text", Text: userPrompt}}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal bedrock request: %w", err)
	}

	contentType := "application/json"
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &b.modelID,
		ContentType: &contentType,
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoke bedrock model: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("decode bedrock response: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty bedrock response")
	}
	return resp.Content[0].Text, nil
}
