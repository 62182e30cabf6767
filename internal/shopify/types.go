package shopify

import "encoding/json"

// Row is one row of the canonical result format both execution paths
// produce: column name to scalar value.
type Row map[string]any

type Column struct {
	Name        string `json:"name"`
	DataType    string `json:"dataType,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// QueryResult is the canonical row set returned by either execution path.
// Data is always non-nil; Error is set when execution failed. PrimaryError
// retains the ShopifyQL failure for diagnostics when the fallback ran.
type QueryResult struct {
	Data          []Row          `json:"data"`
	Columns       []Column       `json:"columns,omitempty"`
	Orders        []Row          `json:"orders,omitempty"`
	Summary       map[string]any `json:"summary,omitempty"`
	Source        string         `json:"source,omitempty"`
	FallbackUsed  bool           `json:"fallback_used"`
	Error         string         `json:"error,omitempty"`
	PrimaryError  string         `json:"shopifyql_error,omitempty"`
	OriginalQuery string         `json:"original_query,omitempty"`
}

// Entities are the values extracted from the question during intent
// classification. Fallback queries consume them directly.
type Entities struct {
	TimePeriod  string `json:"time_period"`
	ProductName string `json:"product_name"`
	Metric      string `json:"metric"`
	Limit       int    `json:"limit"`
}

// UnmarshalJSON tolerates the limit arriving as a number, a numeric string,
// or null, which is how loosely the LLM follows the schema.
func (e *Entities) UnmarshalJSON(data []byte) error {
	type alias Entities
	aux := struct {
		*alias
		Limit json.Number `json:"limit"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if n, err := aux.Limit.Int64(); err == nil {
		e.Limit = int(n)
	}
	return nil
}

// Sources reported on QueryResult.
const (
	SourceShopifyQL       = "shopifyql"
	SourceGraphQLFallback = "graphql_fallback"
)
