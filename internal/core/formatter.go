package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"merchiq.com/analytics-agent/internal/llm"
	"merchiq.com/analytics-agent/internal/shopify"
)

const responseFormattingPrompt = `You are a helpful business analytics assistant. Convert the following data into a clear, friendly response for a store owner.

Original Question: %s
Intent Category: %s
Query Data: %s

Guidelines:
1. Speak in simple, business-friendly language - no technical jargon
2. IMPORTANT: Answer the question that was asked. If they ask to "list products" or "what products", list ALL the products with their details
3. If asked about inventory/stock, show all products with their stock levels
4. Include specific numbers and percentages where relevant
5. If data suggests action items (like low stock), mention them as additional insights
6. Be conversational but professional
7. If the data is empty or insufficient, explain what that means
8. Format numbers nicely (e.g., "$1,234.56" not "1234.56")
9. Round percentages to one decimal place

Respond in JSON format:
{
    "answer": "Your friendly, conversational response here",
    "confidence": "high|medium|low",
    "key_insights": ["insight 1", "insight 2"],
    "recommendations": ["recommendation 1"] (optional)
}`

// lowStockThreshold is the unit count under which a product is flagged in
// inventory summaries.
const lowStockThreshold = 10

// FormattedResponse is the rendered answer plus formatting metadata.
type FormattedResponse struct {
	Answer          string   `json:"answer"`
	Confidence      string   `json:"confidence"`
	KeyInsights     []string `json:"key_insights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ResponseFormatter renders canonical rows into business prose via the LLM,
// degrading to deterministic per-intent summaries.
type ResponseFormatter struct {
	llm    llm.Generator
	logger *zap.Logger
}

func NewResponseFormatter(generator llm.Generator, logger *zap.Logger) *ResponseFormatter {
	return &ResponseFormatter{llm: generator, logger: logger}
}

func (f *ResponseFormatter) Format(ctx context.Context, question, intent string, result *shopify.QueryResult) FormattedResponse {
	if result == nil || result.Error != "" && len(result.Data) == 0 {
		return f.emptyResponse(result)
	}
	if len(result.Data) == 0 {
		return f.emptyResponse(nil)
	}

	prompt := fmt.Sprintf(responseFormattingPrompt, question, intent, dataSummary(result))

	response, err := f.llm.Generate(ctx, prompt)
	if err != nil {
		f.logger.Warn("response_formatting_error", zap.Error(err))
		return f.basicResponse(intent, result)
	}

	var formatted FormattedResponse
	if !decodeLLMJSON(response, &formatted) {
		// Non-JSON output is still usable prose.
		formatted = FormattedResponse{
			Answer:     strings.TrimSpace(response),
			Confidence: "medium",
		}
	}
	if formatted.Answer == "" {
		return f.basicResponse(intent, result)
	}
	if formatted.Confidence == "" {
		formatted.Confidence = "medium"
	}

	f.logger.Info("response_formatted",
		zap.String("confidence", formatted.Confidence),
		zap.Bool("has_recommendations", len(formatted.Recommendations) > 0))
	return formatted
}

// dataSummary serializes the rows for the prompt, truncated to keep the LLM
// context bounded.
func dataSummary(result *shopify.QueryResult) string {
	data := result.Data
	if len(data) == 0 {
		return "No data returned from query"
	}

	truncated := false
	if len(data) > 20 {
		data = data[:20]
		truncated = true
	}

	serialized, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "No data returned from query"
	}

	summary := string(serialized)
	if truncated {
		summary += fmt.Sprintf("\n\n... and %d more rows", len(result.Data)-20)
	}
	return summary
}

func (f *ResponseFormatter) emptyResponse(result *shopify.QueryResult) FormattedResponse {
	if result != nil && result.Error != "" {
		return FormattedResponse{
			Answer: fmt.Sprintf("I wasn't able to retrieve the data you requested. The issue was: %s. "+
				"Please try rephrasing your question or check that the store has the relevant data.", result.Error),
			Confidence: "low",
		}
	}
	return FormattedResponse{
		Answer: "I couldn't find any data matching your question. This could mean there are no records " +
			"for the time period you specified, or the specific items you're asking about don't exist in " +
			"the store. Try broadening your search or checking a different time range.",
		Confidence: "low",
	}
}

// basicResponse renders a deterministic summary without the LLM.
func (f *ResponseFormatter) basicResponse(intent string, result *shopify.QueryResult) FormattedResponse {
	if len(result.Data) == 0 {
		return f.emptyResponse(nil)
	}

	switch intent {
	case IntentSales:
		return formatSales(result.Data)
	case IntentInventory:
		return formatInventory(result.Data)
	case IntentCustomers:
		return formatCustomers(result.Data)
	default:
		return formatGeneric(result.Data)
	}
}

func formatSales(data []shopify.Row) FormattedResponse {
	var totalSales float64
	var totalUnits int
	for _, row := range data {
		totalSales += firstFloat(row, "total_sales", "net_sales")
		totalUnits += int(firstFloat(row, "units_sold", "net_quantity"))
	}

	answer := fmt.Sprintf("Based on the data, your total sales were $%.2f", totalSales)
	if totalUnits > 0 {
		answer += fmt.Sprintf(" with %d units sold", totalUnits)
	}
	answer += "."

	if len(data) > 1 {
		if top, ok := data[0]["product_title"].(string); ok && top != "" {
			answer += fmt.Sprintf(" Your top performing product was %s.", top)
		}
	}

	return FormattedResponse{
		Answer:      answer,
		Confidence:  "medium",
		KeyInsights: []string{fmt.Sprintf("Total sales: $%.2f", totalSales)},
	}
}

func formatInventory(data []shopify.Row) FormattedResponse {
	var lines []string
	var lowStock []string

	for _, row := range data {
		stock := int(firstFloat(row, "stock", "quantity_available"))
		product, _ := row["product_title"].(string)
		if product == "" {
			product = "Unknown"
		}

		if price, ok := row["price"].(string); ok && price != "" {
			lines = append(lines, fmt.Sprintf("- %s: %d units @ $%s", product, stock, price))
		} else {
			lines = append(lines, fmt.Sprintf("- %s: %d units", product, stock))
		}

		if stock < lowStockThreshold {
			lowStock = append(lowStock, fmt.Sprintf("%s (%d units)", product, stock))
		}
	}

	shown := lines
	if len(shown) > 10 {
		shown = shown[:10]
	}
	answer := fmt.Sprintf("Here are your %d products:\n\n%s", len(data), strings.Join(shown, "\n"))
	if len(lines) > 10 {
		answer += fmt.Sprintf("\n... and %d more products.", len(lines)-10)
	}

	if len(lowStock) > 0 {
		alert := lowStock
		if len(alert) > 3 {
			alert = alert[:3]
		}
		answer += fmt.Sprintf("\n\nLow stock alert: %s", strings.Join(alert, ", "))
	}

	return FormattedResponse{
		Answer:     answer,
		Confidence: "medium",
		KeyInsights: []string{
			fmt.Sprintf("%d products", len(data)),
			fmt.Sprintf("%d items with low stock", len(lowStock)),
		},
	}
}

func formatCustomers(data []shopify.Row) FormattedResponse {
	return FormattedResponse{
		Answer:      fmt.Sprintf("Found data for %d customer segments or locations.", len(data)),
		Confidence:  "medium",
		KeyInsights: []string{fmt.Sprintf("%d segments found", len(data))},
	}
}

func formatGeneric(data []shopify.Row) FormattedResponse {
	answer := fmt.Sprintf("Found %d records matching your query.", len(data))

	if len(data) > 0 {
		columns := make([]string, 0, len(data[0]))
		for col := range data[0] {
			columns = append(columns, col)
		}
		if len(columns) > 5 {
			answer += fmt.Sprintf(" Data includes: %s and %d more fields.",
				strings.Join(columns[:5], ", "), len(columns)-5)
		} else {
			answer += fmt.Sprintf(" Data includes: %s", strings.Join(columns, ", "))
		}
	}

	return FormattedResponse{
		Answer:      answer,
		Confidence:  "medium",
		KeyInsights: []string{fmt.Sprintf("%d records found", len(data))},
	}
}

// firstFloat returns the first present numeric value among keys, coercing
// strings and integers.
func firstFloat(row shopify.Row, keys ...string) float64 {
	for _, key := range keys {
		switch v := row[key].(type) {
		case float64:
			if v != 0 {
				return v
			}
		case int:
			if v != 0 {
				return float64(v)
			}
		case int64:
			if v != 0 {
				return float64(v)
			}
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%f", &f); err == nil && f != 0 {
				return f
			}
		case json.Number:
			if f, err := v.Float64(); err == nil && f != 0 {
				return f
			}
		}
	}
	return 0
}
