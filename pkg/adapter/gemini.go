package adapter

import (
	"context"
	"iter"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini opens persona-bound chat sessions with the text generation capability
type Gemini interface {
	// StartChat binds persona as the system instruction of a new chat seeded with history
	StartChat(ctx context.Context, persona string, history []*genai.Content) (ChatStream, error)
}

// ChatStream is one running dialogue. Each send yields text fragments in arrival order and
// terminates with either completion (end of sequence) or a non-nil error.
type ChatStream interface {
	SendStream(ctx context.Context, text string) iter.Seq2[string, error]
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	temperature     *float32
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.generativeModel = model
		}
	}
}

func WithTemperature(t float32) GeminiOption {
	return func(g *GeminiClient) {
		g.temperature = &t
	}
}

// NewGemini creates a client for the Gemini API authenticated by apiKey
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, goerr.New("gemini api key is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) StartChat(ctx context.Context, persona string, history []*genai.Content) (ChatStream, error) {
	config := &genai.GenerateContentConfig{
		Temperature: g.temperature,
	}
	if persona != "" {
		config.SystemInstruction = genai.NewContentFromText(persona, "")
	}

	chat, err := g.client.Chats.Create(ctx, g.generativeModel, config, history)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create new gemini chat", goerr.V("model", g.generativeModel))
	}

	return &geminiChat{chat: chat}, nil
}

type geminiChat struct {
	chat *genai.Chat
}

func (c *geminiChat) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", goerr.Wrap(err, "failed to receive gemini stream chunk"))
				return
			}
			if !yield(responseText(resp), nil) {
				return
			}
		}
	}
}

// responseText concatenates the non-thought text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}
