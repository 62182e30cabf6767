package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"merchiq.com/analytics-agent/internal/shopify"
)

var failingLLM = generatorFunc(func(_ context.Context, _ string) (string, error) {
	return "", errors.New("llm down")
})

func TestFormatUsesLLMAnswer(t *testing.T) {
	formatter := NewResponseFormatter(generatorFunc(func(_ context.Context, _ string) (string, error) {
		return `{"answer": "You sold 10 widgets.", "confidence": "high", "key_insights": ["widgets moving"]}`, nil
	}), zap.NewNop())

	result := formatter.Format(context.Background(), "sales?", IntentSales, &shopify.QueryResult{
		Data: []shopify.Row{{"product_title": "Widget", "total_sales": 100.0}},
	})

	assert.Equal(t, "You sold 10 widgets.", result.Answer)
	assert.Equal(t, "high", result.Confidence)
}

func TestFormatNonJSONResponseUsedAsProse(t *testing.T) {
	formatter := NewResponseFormatter(generatorFunc(func(_ context.Context, _ string) (string, error) {
		return "Your widgets are selling well.", nil
	}), zap.NewNop())

	result := formatter.Format(context.Background(), "sales?", IntentSales, &shopify.QueryResult{
		Data: []shopify.Row{{"product_title": "Widget"}},
	})

	assert.Equal(t, "Your widgets are selling well.", result.Answer)
	assert.Equal(t, "medium", result.Confidence)
}

func TestFormatErrorDataDegradesGracefully(t *testing.T) {
	formatter := NewResponseFormatter(failingLLM, zap.NewNop())

	result := formatter.Format(context.Background(), "sales?", IntentSales, &shopify.QueryResult{
		Error: "HTTP error: 500",
		Data:  []shopify.Row{},
	})

	assert.Contains(t, result.Answer, "HTTP error: 500")
	assert.Equal(t, "low", result.Confidence)
}

func TestFormatEmptyDataExplains(t *testing.T) {
	formatter := NewResponseFormatter(failingLLM, zap.NewNop())

	result := formatter.Format(context.Background(), "sales?", IntentSales, &shopify.QueryResult{Data: []shopify.Row{}})
	assert.Contains(t, result.Answer, "couldn't find any data")
	assert.Equal(t, "low", result.Confidence)
}

func TestFormatInventoryFallbackFlagsLowStock(t *testing.T) {
	formatter := NewResponseFormatter(failingLLM, zap.NewNop())

	result := formatter.Format(context.Background(), "what products do I have", IntentInventory, &shopify.QueryResult{
		Data: []shopify.Row{
			{"product_title": "Red Cap", "quantity_available": 3, "price": "15.00"},
			{"product_title": "Blue T-Shirt", "quantity_available": 42, "price": "25.00"},
		},
	})

	assert.Contains(t, result.Answer, "Red Cap")
	assert.Contains(t, result.Answer, "Blue T-Shirt")
	assert.Contains(t, result.Answer, "Low stock alert")
	assert.Contains(t, result.Answer, "Red Cap (3 units)")
	assert.NotContains(t, result.Answer, "Blue T-Shirt (42 units)")
}

func TestFormatSalesFallbackSummarizes(t *testing.T) {
	formatter := NewResponseFormatter(failingLLM, zap.NewNop())

	result := formatter.Format(context.Background(), "revenue", IntentSales, &shopify.QueryResult{
		Data: []shopify.Row{
			{"product_title": "Widget", "total_sales": 100.50, "units_sold": 7},
			{"product_title": "Gadget", "total_sales": 50.25, "units_sold": 3},
		},
	})

	assert.Contains(t, result.Answer, "$150.75")
	assert.Contains(t, result.Answer, "10 units sold")
	assert.Contains(t, result.Answer, "Widget")
}
