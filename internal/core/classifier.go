package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"merchiq.com/analytics-agent/internal/llm"
	"merchiq.com/analytics-agent/internal/memory"
	"merchiq.com/analytics-agent/internal/shopify"
)

// Intent categories.
const (
	IntentInventory = "inventory"
	IntentSales     = "sales"
	IntentCustomers = "customers"
	IntentOrders    = "orders"
)

var validIntents = []string{IntentInventory, IntentSales, IntentCustomers, IntentOrders}

// Classification is the result of intent classification: the category plus
// the entities extracted from the question.
type Classification struct {
	Intent     string           `json:"intent"`
	Confidence string           `json:"confidence"`
	Entities   shopify.Entities `json:"entities"`
	Reasoning  string           `json:"reasoning"`
}

const intentClassificationPrompt = `You are an expert at understanding e-commerce analytics questions.

Analyze the following question and classify it into one of these categories:
- inventory: Questions about stock levels, inventory counts, product listings, product catalog, what products exist, reorder suggestions, out-of-stock predictions. Use this for "list my products", "show products", "what products do I have"
- sales: Questions about revenue, top-selling products by SALES/REVENUE, sales trends, order amounts, money earned
- customers: Questions about customer behavior, repeat customers, customer segments, customer value
- orders: Questions about order status, fulfillment, shipping, returns

IMPORTANT: If someone asks to "list products" or "show products" or "what products do I have", classify as "inventory" (not sales).

Also extract relevant entities from the question:
- time_period: The time range mentioned (e.g., "last week", "last 30 days", "this month")
- product_name: Specific product mentioned (if any)
- metric: What metric is being asked about (e.g., "units sold", "revenue", "stock level")
- limit: Any numeric limit mentioned (e.g., "top 5", "first 10")

Question: %s
%s
Respond in JSON format:
{
    "intent": "inventory|sales|customers|orders",
    "confidence": "high|medium|low",
    "entities": {
        "time_period": "string or null",
        "product_name": "string or null",
        "metric": "string or null",
        "limit": "number or null"
    },
    "reasoning": "Brief explanation of why this classification was chosen"
}`

// IntentClassifier classifies questions via the LLM, with a deterministic
// keyword fallback so classification never hard-fails.
type IntentClassifier struct {
	llm    llm.Generator
	logger *zap.Logger
}

func NewIntentClassifier(generator llm.Generator, logger *zap.Logger) *IntentClassifier {
	return &IntentClassifier{llm: generator, logger: logger}
}

func (c *IntentClassifier) Classify(ctx context.Context, question string, history []memory.Turn) Classification {
	prompt := fmt.Sprintf(intentClassificationPrompt, question, conversationContext(history))

	response, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("intent_classification_error", zap.Error(err))
		return c.keywordClassification(question)
	}

	var result Classification
	if !decodeLLMJSON(response, &result) {
		c.logger.Warn("intent_json_parse_error", zap.String("response", truncate(response, 200)))
		return c.keywordClassification(question)
	}

	if !containsFold(validIntents, result.Intent) {
		result.Intent = IntentSales
	}
	if result.Confidence == "" {
		result.Confidence = "medium"
	}

	c.logger.Info("intent_classified",
		zap.String("intent", result.Intent),
		zap.String("confidence", result.Confidence))
	return result
}

// keywordClassification is the deterministic fallback used when the LLM is
// unavailable or returns something unusable.
func (c *IntentClassifier) keywordClassification(question string) Classification {
	lower := strings.ToLower(question)

	intent := IntentSales
	switch {
	case containsAny(lower, "stock", "inventory", "reorder", "out of stock", "product", "products", "catalog", "list"):
		intent = IntentInventory
	case containsAny(lower, "customer", "repeat", "buyer", "purchased"):
		intent = IntentCustomers
	case containsAny(lower, "order", "fulfillment", "shipping", "return"):
		intent = IntentOrders
	}

	return Classification{
		Intent:     intent,
		Confidence: "low",
		Reasoning:  "Fallback classification based on keywords",
	}
}

// conversationContext formats up to the last 3 turns for the prompt.
func conversationContext(history []memory.Turn) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > 3 {
		history = history[len(history)-3:]
	}

	var sb strings.Builder
	sb.WriteString("\nConversation context:\nPrevious conversation:\n")
	for _, turn := range history {
		fmt.Fprintf(&sb, "User: %s\n", turn.Question)
		fmt.Fprintf(&sb, "Assistant: %s...\n", truncate(turn.Answer, 200))
	}
	return sb.String()
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
