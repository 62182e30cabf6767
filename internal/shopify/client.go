package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// shopifyqlUnavailableErrors are the error fragments indicating the
// shopifyqlQuery mutation is categorically absent from a store's API
// surface, as opposed to a malformed query.
var shopifyqlUnavailableErrors = []string{
	"shopifyqlquery",
	"doesn't exist on type",
	"not available",
	"not supported",
}

// isShopifyQLUnavailable reports whether an error message means ShopifyQL is
// not present for this store. The substring coupling to Shopify's wording is
// deliberately confined to this one predicate.
func isShopifyQLUnavailable(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, pattern := range shopifyqlUnavailableErrors {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Client executes analytics queries against one store, trying ShopifyQL
// first and substituting intent-specific GraphQL Admin API calls when
// ShopifyQL is unavailable.
type Client struct {
	storeDomain string
	accessToken string
	graphqlURL  string
	httpClient  *http.Client
	logger      *zap.Logger

	// unavailable decides whether a primary-path error triggers the
	// fallback. Replaceable in tests.
	unavailable func(string) bool
}

func NewClient(storeDomain, accessToken, apiVersion string, logger *zap.Logger) *Client {
	domain := strings.TrimPrefix(strings.TrimPrefix(storeDomain, "https://"), "http://")
	if !strings.HasSuffix(domain, ".myshopify.com") {
		domain = domain + ".myshopify.com"
	}

	return &Client{
		storeDomain: domain,
		accessToken: accessToken,
		graphqlURL:  fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, apiVersion),
		httpClient:  &http.Client{Timeout: requestTimeout},
		logger:      logger,
		unavailable: isShopifyQLUnavailable,
	}
}

// ExecuteWithFallback runs the dual-path chain: ShopifyQL first, then the
// intent-specific GraphQL fallback when ShopifyQL is absent for this store.
// Errors never escape as Go errors; they surface on the QueryResult.
func (c *Client) ExecuteWithFallback(ctx context.Context, query, intent string, entities Entities) *QueryResult {
	c.logger.Info("attempting_shopifyql",
		zap.String("store", c.storeDomain),
		zap.String("query", truncate(query, 100)))

	primary := c.ExecuteShopifyQL(ctx, query)
	if primary.Error == "" {
		primary.Source = SourceShopifyQL
		primary.FallbackUsed = false
		return primary
	}

	if !c.unavailable(primary.Error) {
		// Query-level failure: return untouched so the caller can repair
		// the query rather than fall back.
		c.logger.Warn("shopifyql_failed", zap.String("error", primary.Error))
		primary.Source = SourceShopifyQL
		primary.FallbackUsed = false
		return primary
	}

	c.logger.Info("shopifyql_unavailable_falling_back_to_graphql",
		zap.String("error", primary.Error))

	result := c.executeFallback(ctx, intent, entities)
	result.Source = SourceGraphQLFallback
	result.FallbackUsed = true
	result.PrimaryError = primary.Error
	result.OriginalQuery = query
	return result
}

// ExecuteShopifyQL runs a raw ShopifyQL query via the shopifyqlQuery
// GraphQL mutation and normalizes the table or viz response.
func (c *Client) ExecuteShopifyQL(ctx context.Context, query string) *QueryResult {
	const mutation = `
	mutation shopifyqlQuery($query: String!) {
		shopifyqlQuery(query: $query) {
			__typename
			... on TableResponse {
				tableData {
					rowData
					columns {
						name
						dataType
						displayName
					}
				}
				parseErrors {
					code
					message
				}
			}
			... on PolarisVizResponse {
				data {
					key
					data {
						key
						value
					}
				}
				parseErrors {
					code
					message
				}
			}
		}
	}`

	var payload struct {
		ShopifyqlQuery *struct {
			Typename  string `json:"__typename"`
			TableData *struct {
				RowData [][]any  `json:"rowData"`
				Columns []Column `json:"columns"`
			} `json:"tableData"`
			Data []struct {
				Key  string `json:"key"`
				Data []struct {
					Key   string `json:"key"`
					Value any    `json:"value"`
				} `json:"data"`
			} `json:"data"`
			ParseErrors []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"parseErrors"`
		} `json:"shopifyqlQuery"`
	}

	if err := c.doGraphQL(ctx, mutation, map[string]any{"query": query}, &payload); err != nil {
		c.logger.Warn("shopifyql_error", zap.Error(err))
		return &QueryResult{Error: err.Error(), Data: []Row{}}
	}

	result := payload.ShopifyqlQuery
	if result == nil {
		return &QueryResult{Error: "No data in response", Data: []Row{}}
	}

	if len(result.ParseErrors) > 0 {
		messages := make([]string, 0, len(result.ParseErrors))
		for _, pe := range result.ParseErrors {
			messages = append(messages, pe.Message)
		}
		return &QueryResult{Error: strings.Join(messages, "; "), Data: []Row{}}
	}

	switch result.Typename {
	case "TableResponse":
		if result.TableData == nil {
			return &QueryResult{Data: []Row{}}
		}
		rows := make([]Row, 0, len(result.TableData.RowData))
		for _, raw := range result.TableData.RowData {
			row := Row{}
			for i, value := range raw {
				if i < len(result.TableData.Columns) {
					row[result.TableData.Columns[i].Name] = value
				} else {
					row[fmt.Sprintf("col_%d", i)] = value
				}
			}
			rows = append(rows, row)
		}
		return &QueryResult{Data: rows, Columns: result.TableData.Columns}

	case "PolarisVizResponse":
		rows := make([]Row, 0)
		for _, series := range result.Data {
			for _, point := range series.Data {
				rows = append(rows, Row{
					"series": series.Key,
					"key":    point.Key,
					"value":  point.Value,
				})
			}
		}
		return &QueryResult{Data: rows}
	}

	return &QueryResult{Error: "Unknown response type", Data: []Row{}}
}

// TestConnection checks that the store credentials work by fetching the
// shop name.
func (c *Client) TestConnection(ctx context.Context) bool {
	const query = `query { shop { name email } }`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var payload struct {
		Shop *struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	if err := c.doGraphQL(ctx, query, nil, &payload); err != nil {
		c.logger.Warn("shopify_connection_failed", zap.Error(err))
		return false
	}
	if payload.Shop == nil {
		return false
	}

	c.logger.Info("shopify_connection_success", zap.String("shop", payload.Shop.Name))
	return true
}

// doGraphQL posts one GraphQL request and decodes the data object into out.
// Top-level GraphQL errors are joined into a single error.
func (c *Client) doGraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("%s", strings.Join(messages, "; "))
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
