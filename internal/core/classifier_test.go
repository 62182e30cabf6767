package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestClassifyParsesLLMResponse(t *testing.T) {
	llmResponse := "```json\n" + `{
		"intent": "inventory",
		"confidence": "high",
		"entities": {
			"time_period": null,
			"product_name": "t-shirt",
			"metric": "stock level",
			"limit": 5
		},
		"reasoning": "asks about stock"
	}` + "\n```"

	classifier := NewIntentClassifier(generatorFunc(func(_ context.Context, _ string) (string, error) {
		return llmResponse, nil
	}), zap.NewNop())

	result := classifier.Classify(context.Background(), "how much t-shirt stock do I have?", nil)

	assert.Equal(t, IntentInventory, result.Intent)
	assert.Equal(t, "high", result.Confidence)
	assert.Equal(t, "t-shirt", result.Entities.ProductName)
	assert.Equal(t, 5, result.Entities.Limit)
}

func TestClassifyTolerantEntityLimit(t *testing.T) {
	// The LLM sometimes emits the limit as a quoted string.
	classifier := NewIntentClassifier(generatorFunc(func(_ context.Context, _ string) (string, error) {
		return `{"intent": "sales", "confidence": "medium", "entities": {"limit": "10"}}`, nil
	}), zap.NewNop())

	result := classifier.Classify(context.Background(), "top sellers", nil)
	assert.Equal(t, IntentSales, result.Intent)
	assert.Equal(t, 10, result.Entities.Limit)
}

func TestClassifyInvalidIntentDefaultsToSales(t *testing.T) {
	classifier := NewIntentClassifier(generatorFunc(func(_ context.Context, _ string) (string, error) {
		return `{"intent": "weather", "confidence": "high", "entities": {}}`, nil
	}), zap.NewNop())

	result := classifier.Classify(context.Background(), "anything", nil)
	assert.Equal(t, IntentSales, result.Intent)
}

func TestClassifyKeywordFallback(t *testing.T) {
	failing := generatorFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("llm down")
	})
	classifier := NewIntentClassifier(failing, zap.NewNop())

	tests := []struct {
		question string
		want     string
	}{
		{"what products do I have in stock", IntentInventory},
		{"who are my repeat customers", IntentCustomers},
		{"show me unfulfilled order shipping status", IntentOrders},
		{"how much revenue last week", IntentSales},
	}

	for _, tt := range tests {
		result := classifier.Classify(context.Background(), tt.question, nil)
		assert.Equal(t, tt.want, result.Intent, tt.question)
		assert.Equal(t, "low", result.Confidence)
	}
}

func TestClassifyMalformedJSONFallsBack(t *testing.T) {
	classifier := NewIntentClassifier(generatorFunc(func(_ context.Context, _ string) (string, error) {
		return "I think this is an inventory question", nil
	}), zap.NewNop())

	result := classifier.Classify(context.Background(), "list my products", nil)
	assert.Equal(t, IntentInventory, result.Intent)
	assert.Equal(t, "low", result.Confidence)
}
