package llm

import (
	"context"
	"strings"
)

// Mock is a deterministic Generator used when no API key is configured and
// in tests. It inspects the prompt to decide which canned payload fits.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

const mockClassification = `{
    "intent": "sales",
    "confidence": "high",
    "entities": {
        "time_period": "last 7 days",
        "product_name": null,
        "metric": "sales",
        "limit": 5
    },
    "reasoning": "Mock classification - question appears to be about sales data"
}`

const mockQuery = `{
    "query": "FROM sales SHOW product_title, sum(net_sales) AS total_sales, sum(net_quantity) AS units_sold SINCE -7d UNTIL today GROUP BY product_title ORDER BY total_sales DESC LIMIT 5",
    "explanation": "Top 5 selling products by revenue over the last 7 days",
    "fields_used": ["product_title", "net_sales", "net_quantity"],
    "table": "sales"
}`

const mockAnswer = `{
    "answer": "Based on your store's data from the last 7 days, here are your top 5 selling products: 1) Blue T-Shirt ($1,234.56, 45 units), 2) Black Jeans ($987.65, 32 units), 3) White Sneakers ($876.54, 28 units), 4) Red Cap ($543.21, 25 units), 5) Green Hoodie ($432.10, 20 units).",
    "confidence": "high",
    "key_insights": ["Blue T-Shirt is your top seller", "Total of 150 units sold across top 5 products"],
    "recommendations": ["Consider restocking Blue T-Shirts"]
}`

func (m *Mock) Generate(_ context.Context, prompt string) (string, error) {
	p := strings.ToLower(prompt)

	switch {
	case strings.Contains(p, "classify") || strings.Contains(p, "intent"):
		return mockClassification, nil
	case strings.Contains(p, "shopifyql") || strings.Contains(p, "query"):
		return mockQuery, nil
	case strings.Contains(p, "format") || strings.Contains(p, "response"):
		return mockAnswer, nil
	default:
		return "Mock response - configure GOOGLE_API_KEY for real responses", nil
	}
}
