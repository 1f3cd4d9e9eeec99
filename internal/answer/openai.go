package answer

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/kotae/internal/models"
)

// Default models and sampling settings for the two call types.
const (
	DefaultAnswerModel    = "gpt-4o-mini"
	DefaultSynthesisModel = "gpt-4o"

	answerTemperature    = 0.3
	answerMaxTokens      = 400
	synthesisTemperature = 0.2
	synthesisMaxTokens   = 600
)

// OpenAIAnswerer answers questions through the OpenAI chat API.
type OpenAIAnswerer struct {
	client         *openai.Client
	answerModel    string
	synthesisModel string
}

// NewOpenAIAnswerer creates an answerer. Empty model names fall back to the
// defaults.
func NewOpenAIAnswerer(apiKey, answerModel, synthesisModel string) (*OpenAIAnswerer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if answerModel == "" {
		answerModel = DefaultAnswerModel
	}
	if synthesisModel == "" {
		synthesisModel = DefaultSynthesisModel
	}
	return &OpenAIAnswerer{
		client:         openai.NewClient(apiKey),
		answerModel:    answerModel,
		synthesisModel: synthesisModel,
	}, nil
}

// Answer answers the question from the given passages only, with citations.
func (a *OpenAIAnswerer) Answer(ctx context.Context, question string, passages []models.SearchResult) (string, error) {
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%s (Page %d):\n%s", p.DocName, p.Page, p.Text)
	}
	prompt := fmt.Sprintf(`You are a helpful assistant. Use the following document content to answer the question accurately and cite the source.

Document Content:
%s

Question:
%s

Instructions:
- Use only the information from the documents
- Provide clear and factual answers
- Cite using (Document Name, Page X)
`, sb.String(), question)

	return a.complete(ctx, a.answerModel, prompt, answerTemperature, answerMaxTokens)
}

// Synthesize asks the model for themes across the per-document answers in a
// strict text format and parses it. On a model failure, the error is
// returned; on a parse shortfall, the synthesis degrades (sources kept).
func (a *OpenAIAnswerer) Synthesize(ctx context.Context, question string, answers []models.DocumentAnswer) (*models.Synthesis, error) {
	var sb strings.Builder
	for i, ans := range answers {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "DOCUMENT %d (%s, Page %d):\n%s", i+1, ans.DocName, ans.Page, ans.Answer)
	}
	prompt := fmt.Sprintf(`Analyze the following answers to a single user question and identify key themes:

Question:
%s

Answers from different documents:
%s

Instructions:
1. Identify 1-3 main themes present in the answers.
2. For each theme:
   - Give a short title (3-5 words)
   - Brief description (1-2 sentences)
   - List the DOCUMENT numbers contributing to this theme (e.g., 1, 3, 5)
3. Finally, provide a synthesized answer summarizing all themes.
Format strictly as below:

THEMES:
1. [Theme Name]
   - [Description]
   - Documents: 1, 3

2. [Theme Name]
   - [Description]
   - Documents: 2, 4

SYNTHESIZED ANSWER:
[Summarized and cited answer here]
`, question, sb.String())

	raw, err := a.complete(ctx, a.synthesisModel, prompt, synthesisTemperature, synthesisMaxTokens)
	if err != nil {
		return nil, err
	}
	return parseSynthesis(raw, answers), nil
}

func (a *OpenAIAnswerer) complete(ctx context.Context, model, prompt string, temperature float32, maxTokens int) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
