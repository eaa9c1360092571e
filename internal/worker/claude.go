package worker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/warden/pkg/models"
)

// ClaudeConfig configures the Claude-backed session runner.
type ClaudeConfig struct {
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region.
	AWSRegion string
	// AWSProfile is an optional shared-config profile.
	AWSProfile string
	// Models maps capability tiers to models. Unset tiers fall back to
	// the builder model, then to a default.
	Models map[models.Tier]anthropic.Model
	// MaxTokens bounds each response. Zero uses a sensible default.
	MaxTokens int64
}

// ClaudeRunner implements SessionRunner with the Anthropic API.
type ClaudeRunner struct {
	client    anthropic.Client
	models    map[models.Tier]anthropic.Model
	maxTokens int64
}

// NewClaudeRunner creates a runner from the given configuration.
func NewClaudeRunner(cfg ClaudeConfig) (*ClaudeRunner, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 16384
	}

	return &ClaudeRunner{
		client:    anthropic.NewClient(opts...),
		models:    cfg.Models,
		maxTokens: maxTokens,
	}, nil
}

// modelFor picks the model for a tier.
func (r *ClaudeRunner) modelFor(tier models.Tier) anthropic.Model {
	if m, ok := r.models[tier]; ok {
		return m
	}
	if m, ok := r.models[models.TierBuilder]; ok {
		return m
	}
	return anthropic.ModelClaudeSonnet4_20250514
}

// Run implements SessionRunner: it asks the model for a complete changeset
// for the task and parses the response into file changes. The workspace is
// described to the model but only the controller writes into it.
func (r *ClaudeRunner) Run(ctx context.Context, task *models.Task, tier models.Tier, workspace string) (*models.Changeset, error) {
	prompt := buildSessionPrompt(task, workspace)

	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.modelFor(tier),
		MaxTokens: r.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: sessionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session request: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	cs, err := parseChangeset(text.String())
	if err != nil {
		return nil, fmt.Errorf("parse session output: %w", err)
	}
	return cs, nil
}

const sessionSystemPrompt = `You are an automated implementation worker.
Respond ONLY with file operations in this exact format, one per file:

===FILE path/to/file.go===
<full file content>
===END===

To delete a file, emit:

===DELETE path/to/file.go===

No commentary outside the markers.`

func buildSessionPrompt(task *models.Task, workspace string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n\n", task.ID, task.Title)
	if task.Description != "" {
		b.WriteString(task.Description)
		b.WriteString("\n\n")
	}
	if len(task.FilePatterns) > 0 {
		fmt.Fprintf(&b, "Stay within these paths: %s\n", strings.Join(task.FilePatterns, ", "))
	}
	fmt.Fprintf(&b, "The workspace root is %s.\n", workspace)
	return b.String()
}

// parseChangeset extracts file operations from model output.
func parseChangeset(text string) (*models.Changeset, error) {
	cs := &models.Changeset{}
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(line, "===DELETE ") && strings.HasSuffix(line, "==="):
			path := strings.TrimSuffix(strings.TrimPrefix(line, "===DELETE "), "===")
			cs.Files = append(cs.Files, models.FileChange{Path: strings.TrimSpace(path), Delete: true})

		case strings.HasPrefix(line, "===FILE ") && strings.HasSuffix(line, "==="):
			path := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "===FILE "), "==="))
			var content []string
			closed := false
			for i++; i < len(lines); i++ {
				if strings.TrimSpace(lines[i]) == "===END===" {
					closed = true
					break
				}
				content = append(content, lines[i])
			}
			if !closed {
				return nil, fmt.Errorf("unterminated file block for %s", path)
			}
			cs.Files = append(cs.Files, models.FileChange{
				Path:    path,
				Content: strings.Join(content, "\n"),
			})
		}
	}
	return cs, nil
}
