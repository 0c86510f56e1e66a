// Package assistant answers storefront chat messages. Each turn is classified
// as a help question or a product search; searches are served from the
// product catalog.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/text/currency"

	"quickcart/internal/domain"
)

const (
	maxProducts    = 4
	defaultKeyword = "shoes"
	fallbackReply  = "I'm here to help!"

	intentPrompt  = `Does the user want to search for a product? Reply ONLY in JSON format: {"intent": "search"} or {"intent": "question"}.`
	faqPrompt     = "You are a helpful e-commerce assistant. Answer questions about how to place an order, how to pay, check order status, and other website help."
	keywordPrompt = `Extract the main product keyword(s) as JSON like: { "query": "sneakers" }. Only return JSON.`
)

type ProductSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Product, error)
}

// History persists a conversation between requests.
type History interface {
	Load(ctx context.Context, conversationID string) ([]domain.ChatMessage, error)
	Save(ctx context.Context, conversationID string, msgs []domain.ChatMessage) error
}

type Reply struct {
	Reply    string           `json:"reply"`
	Products []domain.Product `json:"products"`
}

type Assistant interface {
	Respond(ctx context.Context, conversationID string, messages []domain.ChatMessage) (*Reply, error)
}

type assistant struct {
	llm      llms.Model
	products ProductSearcher
	history  History
	currency currency.Unit
}

// New builds the assistant. history may be nil, in which case every request
// must carry the whole conversation.
func New(llm llms.Model, products ProductSearcher, history History, storeCurrency currency.Unit) (Assistant, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm is nil")
	}
	if products == nil {
		return nil, fmt.Errorf("product searcher is nil")
	}
	return &assistant{
		llm:      llm,
		products: products,
		history:  history,
		currency: storeCurrency,
	}, nil
}

func (a *assistant) Respond(ctx context.Context, conversationID string, messages []domain.ChatMessage) (*Reply, error) {
	if len(messages) == 0 {
		return nil, domain.Invalid("No messages provided")
	}

	conversation := a.load(ctx, conversationID, messages)
	chat := toMessageContent(conversation)

	reply, err := a.answer(ctx, chat)
	if err != nil {
		return nil, err
	}

	a.save(ctx, conversationID, append(conversation, domain.ChatMessage{From: "assistant", Text: reply.Reply}))
	return reply, nil
}

func (a *assistant) answer(ctx context.Context, chat []llms.MessageContent) (*Reply, error) {
	intent, err := a.classify(ctx, chat)
	if err != nil {
		return nil, err
	}

	if intent == "question" {
		text, err := a.complete(ctx, append([]llms.MessageContent{system(faqPrompt)}, chat...))
		if err != nil {
			return nil, err
		}
		if text == "" {
			text = fallbackReply
		}
		return &Reply{Reply: text, Products: []domain.Product{}}, nil
	}

	keyword, err := a.keyword(ctx, chat)
	if err != nil {
		return nil, err
	}
	products, err := a.products.Search(ctx, keyword, maxProducts)
	if err != nil {
		return nil, fmt.Errorf("products.Search: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return &Reply{Reply: a.describe(keyword, products), Products: products}, nil
}

// classify defaults to search whenever the model's answer is unusable.
func (a *assistant) classify(ctx context.Context, chat []llms.MessageContent) (string, error) {
	text, err := a.complete(ctx, append(chat, system(intentPrompt)))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := decodeJSON(text, &parsed); err != nil || parsed.Intent == "" {
		return "search", nil
	}
	return parsed.Intent, nil
}

func (a *assistant) keyword(ctx context.Context, chat []llms.MessageContent) (string, error) {
	text, err := a.complete(ctx, append(chat, system(keywordPrompt)))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(text, &parsed); err != nil || strings.TrimSpace(parsed.Query) == "" {
		return defaultKeyword, nil
	}
	return strings.TrimSpace(parsed.Query), nil
}

func (a *assistant) complete(ctx context.Context, content []llms.MessageContent) (string, error) {
	completion, err := a.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("llm.GenerateContent: %w", err)
	}

	var response strings.Builder
	for _, choice := range completion.Choices {
		if choice == nil {
			continue
		}
		response.WriteString(choice.Content)

		if choice.StopReason != "" && choice.StopReason != "stop" {
			slog.Warn("Unexpected stop reason",
				"method", "assistant.complete",
				"stop_reason", choice.StopReason)
		}
	}
	return strings.TrimSpace(response.String()), nil
}

func (a *assistant) describe(keyword string, products []domain.Product) string {
	if len(products) == 0 {
		return fmt.Sprintf("Here are some products matching %q:\nNo products found.", keyword)
	}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("- %s (%s %s) → /product/%s", p.Name, a.currency, p.DiscountedPrice().StringFixed(2), p.ID))
	}
	return fmt.Sprintf("Here are some products matching %q:\n%s", keyword, strings.Join(lines, "\n"))
}

func (a *assistant) load(ctx context.Context, conversationID string, incoming []domain.ChatMessage) []domain.ChatMessage {
	if a.history == nil || conversationID == "" {
		return incoming
	}
	prior, err := a.history.Load(ctx, conversationID)
	if err != nil {
		slog.Warn("conversation history unavailable",
			"method", "Assistant.Respond",
			"conversation_id", conversationID,
			"error", err)
		return incoming
	}
	return append(prior, incoming...)
}

func (a *assistant) save(ctx context.Context, conversationID string, conversation []domain.ChatMessage) {
	if a.history == nil || conversationID == "" {
		return
	}
	if err := a.history.Save(ctx, conversationID, conversation); err != nil {
		slog.Warn("conversation history not saved",
			"method", "Assistant.Respond",
			"conversation_id", conversationID,
			"error", err)
	}
}

func toMessageContent(msgs []domain.ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		role := llms.ChatMessageTypeAI
		if m.From == "user" {
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, m.Text))
	}
	return out
}

func system(prompt string) llms.MessageContent {
	return llms.TextParts(llms.ChatMessageTypeSystem, prompt)
}

// decodeJSON reads the first JSON object in text; models like to wrap it in
// code fences.
func decodeJSON(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in %q", text)
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
