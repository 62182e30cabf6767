package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"merchiq.com/analytics-agent/internal/llm"
	"merchiq.com/analytics-agent/internal/memory"
	"merchiq.com/analytics-agent/internal/shopify"
)

const shopifyQLSchema = `
ShopifyQL Schema Reference:

TABLES:
1. sales - Order and transaction data
   Fields: order_id, product_id, product_title, product_type, variant_id, variant_title,
           billing_city, billing_country, billing_region, shipping_city, shipping_country,
           net_sales, gross_sales, discounts, returns, taxes, total_sales,
           net_quantity, ordered_quantity, returned_quantity,
           day, hour, month, week, year

2. products - Product catalog
   Fields: product_id, product_title, product_type, vendor, product_tag

3. inventory - Current stock levels
   Fields: product_id, product_title, variant_id, variant_title,
           quantity_available, incoming_quantity, committed_quantity,
           location_id, location_name

SYNTAX:
- FROM <table>
- SHOW <field1>, <field2>, aggregate_function(field) AS alias
- WHERE <conditions>
- GROUP BY <field>
- ORDER BY <field> ASC|DESC
- SINCE <date> UNTIL <date>  (for time-based queries)
- LIMIT <number>

TIME EXPRESSIONS:
- SINCE -7d UNTIL today (last 7 days)
- SINCE -30d UNTIL today (last 30 days)
- SINCE -1m UNTIL today (last month)
- SINCE -1y UNTIL today (last year)

AGGREGATE FUNCTIONS:
- sum(field)
- count(field)
- avg(field)
- min(field)
- max(field)
`

const queryGenerationPrompt = `You are a ShopifyQL expert. Generate a ShopifyQL query for the given question.

%s

User Question: %s
Classified Intent: %s
Extracted Entities: %s
%s
Generate a ShopifyQL query that answers the question. Follow these rules:
1. Use the correct table based on intent (sales for revenue/orders, inventory for stock)
2. Include appropriate time ranges using SINCE/UNTIL
3. Use GROUP BY for aggregations
4. Use ORDER BY and LIMIT for "top N" queries
5. Ensure all field names are valid

Respond in JSON format:
{
    "query": "the ShopifyQL query",
    "explanation": "brief explanation of what the query does",
    "fields_used": ["list", "of", "fields"],
    "table": "main table used"
}`

const regeneratePrompt = `The following ShopifyQL query had validation errors:

Query: %s
Errors: %s

Please fix the query to address these errors. The original question was:
"%s"

Intent: %s

%s

Respond in JSON format:
{
    "query": "the corrected ShopifyQL query",
    "explanation": "what was fixed"
}`

// GeneratedQuery is the structured output of query generation.
type GeneratedQuery struct {
	Query       string   `json:"query"`
	Explanation string   `json:"explanation"`
	FieldsUsed  []string `json:"fields_used,omitempty"`
	Table       string   `json:"table,omitempty"`
}

// QueryGenerator turns a classified question into a ShopifyQL query, with a
// deterministic intent-template fallback when the LLM fails.
type QueryGenerator struct {
	llm    llm.Generator
	logger *zap.Logger
}

func NewQueryGenerator(generator llm.Generator, logger *zap.Logger) *QueryGenerator {
	return &QueryGenerator{llm: generator, logger: logger}
}

func (g *QueryGenerator) Generate(ctx context.Context, question, intent string, entities shopify.Entities, history []memory.Turn) GeneratedQuery {
	entitiesJSON, _ := json.Marshal(entities)
	prompt := fmt.Sprintf(queryGenerationPrompt,
		shopifyQLSchema, question, intent, entitiesJSON, priorQueries(history))

	response, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		g.logger.Warn("query_generation_error", zap.Error(err))
		return g.templateQuery(intent, entities)
	}

	result, ok := g.parseResponse(response)
	if !ok {
		return g.templateQuery(intent, entities)
	}

	g.logger.Info("query_generated",
		zap.String("table", result.Table),
		zap.Int("query_length", len(result.Query)))
	return result
}

// RegenerateWithErrors asks for a corrected query after validation failed.
// Used exactly once per request.
func (g *QueryGenerator) RegenerateWithErrors(ctx context.Context, originalQuery string, errors []string, question, intent string) GeneratedQuery {
	prompt := fmt.Sprintf(regeneratePrompt,
		originalQuery, strings.Join(errors, ", "), question, intent, shopifyQLSchema)

	response, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		g.logger.Warn("query_regeneration_error", zap.Error(err))
		return GeneratedQuery{Query: originalQuery, Explanation: "Could not regenerate"}
	}

	result, ok := g.parseResponse(response)
	if !ok {
		return GeneratedQuery{Query: originalQuery, Explanation: "Could not regenerate"}
	}

	g.logger.Info("query_regenerated", zap.Int("had_errors", len(errors)))
	return result
}

// parseResponse decodes the LLM's JSON payload, salvaging a bare query from
// the raw text when the payload is malformed but visibly contains one.
func (g *QueryGenerator) parseResponse(response string) (GeneratedQuery, bool) {
	var result GeneratedQuery
	if decodeLLMJSON(response, &result) && result.Query != "" {
		return result, true
	}

	g.logger.Warn("query_json_parse_error", zap.String("response", truncate(response, 200)))

	if strings.Contains(response, "FROM") {
		var queryLines []string
		inQuery := false
		for _, line := range strings.Split(response, "\n") {
			if strings.Contains(line, "FROM") {
				inQuery = true
			}
			if inQuery {
				queryLines = append(queryLines, line)
				if strings.Contains(line, "LIMIT") || (strings.TrimSpace(line) == "" && len(queryLines) > 0) {
					break
				}
			}
		}
		salvaged := strings.TrimSpace(strings.Join(queryLines, " "))
		if salvaged != "" {
			return GeneratedQuery{Query: salvaged, Explanation: "Extracted from response"}, true
		}
	}

	return GeneratedQuery{}, false
}

// templateQuery is the deterministic intent-to-query fallback.
func (g *QueryGenerator) templateQuery(intent string, entities shopify.Entities) GeneratedQuery {
	timeClause := timePeriodClause(entities.TimePeriod)
	limit := entities.Limit
	if limit <= 0 {
		limit = 10
	}

	var query, table string
	switch intent {
	case IntentInventory:
		table = "inventory"
		query = "FROM inventory SHOW product_title, sum(quantity_available) AS stock GROUP BY product_title ORDER BY stock ASC LIMIT 10"
	case IntentCustomers:
		table = "sales"
		query = fmt.Sprintf("FROM sales SHOW billing_city, count(order_id) AS order_count %s GROUP BY billing_city ORDER BY order_count DESC LIMIT %d", timeClause, limit)
	case IntentOrders:
		table = "sales"
		query = fmt.Sprintf("FROM sales SHOW day, count(order_id) AS orders, sum(net_sales) AS revenue %s GROUP BY day ORDER BY day DESC", timeClause)
	default:
		table = "sales"
		query = fmt.Sprintf("FROM sales SHOW product_title, sum(net_sales) AS total_sales, sum(net_quantity) AS units_sold %s GROUP BY product_title ORDER BY total_sales DESC LIMIT %d", timeClause, limit)
	}

	return GeneratedQuery{
		Query:       strings.Join(strings.Fields(query), " "),
		Explanation: "Fallback query generated",
		Table:       table,
	}
}

// timePeriodClause translates a natural-language time period into a
// SINCE/UNTIL clause.
func timePeriodClause(timePeriod string) string {
	if timePeriod == "" {
		return "SINCE -7d UNTIL today"
	}
	period := strings.ToLower(timePeriod)

	switch {
	case strings.Contains(period, "90 day") || strings.Contains(period, "3 month"):
		return "SINCE -90d UNTIL today"
	case strings.Contains(period, "30 day") || strings.Contains(period, "month"):
		return "SINCE -30d UNTIL today"
	case strings.Contains(period, "year") || strings.Contains(period, "365"):
		return "SINCE -1y UNTIL today"
	case strings.Contains(period, "week") || strings.Contains(period, "7 day"):
		return "SINCE -7d UNTIL today"
	case strings.Contains(period, "yesterday"):
		return "SINCE -1d UNTIL -1d"
	case strings.Contains(period, "today"):
		return "SINCE today UNTIL today"
	default:
		return "SINCE -7d UNTIL today"
	}
}

// priorQueries formats up to the last 2 queries for the generation prompt.
func priorQueries(history []memory.Turn) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > 2 {
		history = history[len(history)-2:]
	}

	var sb strings.Builder
	sb.WriteString("\nPrevious queries in this conversation:\n")
	found := false
	for _, turn := range history {
		if turn.Query != "" {
			fmt.Fprintf(&sb, "- %s\n", turn.Query)
			found = true
		}
	}
	if !found {
		return ""
	}
	return sb.String()
}
