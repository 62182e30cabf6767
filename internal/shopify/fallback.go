package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"
)

const maxPageSize = 50

// executeFallback dispatches to the intent-specific GraphQL routine and
// reshapes the results into the canonical row format.
func (c *Client) executeFallback(ctx context.Context, intent string, entities Entities) *QueryResult {
	c.logger.Info("executing_graphql_fallback", zap.String("intent", intent))

	switch intent {
	case "inventory":
		return c.inventoryFallback(ctx, entities)
	case "sales", "orders":
		return c.ordersFallback(ctx, entities)
	case "customers":
		return c.customersFallback(ctx, entities)
	default:
		return c.productsFallback(ctx, entities)
	}
}

type moneySet struct {
	ShopMoney struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	} `json:"shopMoney"`
}

type variantNode struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventoryQuantity"`
	SKU               string `json:"sku"`
}

type productNode struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Handle         string `json:"handle"`
	ProductType    string `json:"productType"`
	Vendor         string `json:"vendor"`
	TotalInventory int    `json:"totalInventory"`
	Status         string `json:"status"`
	Variants       struct {
		Edges []struct {
			Node variantNode `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type productsPayload struct {
	Products struct {
		Edges []struct {
			Node productNode `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

func (c *Client) productsFallback(ctx context.Context, entities Entities) *QueryResult {
	limit := pageSize(entities.Limit, 10)

	const query = `
	query getProducts($first: Int!) {
		products(first: $first, sortKey: INVENTORY_TOTAL, reverse: true) {
			edges {
				node {
					id
					title
					handle
					productType
					vendor
					totalInventory
					status
					variants(first: 5) {
						edges {
							node {
								id
								title
								price
								inventoryQuantity
								sku
							}
						}
					}
				}
			}
		}
	}`

	var payload productsPayload
	if err := c.doGraphQL(ctx, query, map[string]any{"first": limit}, &payload); err != nil {
		c.logger.Warn("graphql_products_error", zap.Error(err))
		return &QueryResult{Error: err.Error(), Data: []Row{}}
	}

	rows := make([]Row, 0, len(payload.Products.Edges))
	for _, edge := range payload.Products.Edges {
		node := edge.Node
		var variant variantNode
		if len(node.Variants.Edges) > 0 {
			variant = node.Variants.Edges[0].Node
		}
		rows = append(rows, Row{
			"product_title":   node.Title,
			"product_type":    node.ProductType,
			"vendor":          node.Vendor,
			"total_inventory": node.TotalInventory,
			"price":           variant.Price,
			"sku":             variant.SKU,
			"status":          node.Status,
		})
	}

	return &QueryResult{Data: rows}
}

func (c *Client) inventoryFallback(ctx context.Context, entities Entities) *QueryResult {
	limit := pageSize(entities.Limit, 20)

	// Product-name filters are interpolated into the query text because the
	// products query argument is not a GraphQL variable of the filter.
	filter := ""
	if entities.ProductName != "" {
		filter = fmt.Sprintf(`, query: "title:*%s*"`, entities.ProductName)
	}

	query := fmt.Sprintf(`
	query getInventory($first: Int!) {
		products(first: $first, sortKey: INVENTORY_TOTAL%s) {
			edges {
				node {
					id
					title
					totalInventory
					variants(first: 10) {
						edges {
							node {
								id
								title
								inventoryQuantity
								price
								sku
							}
						}
					}
				}
			}
		}
	}`, filter)

	var payload productsPayload
	if err := c.doGraphQL(ctx, query, map[string]any{"first": limit}, &payload); err != nil {
		c.logger.Warn("graphql_inventory_error", zap.Error(err))
		return &QueryResult{Error: err.Error(), Data: []Row{}}
	}

	rows := make([]Row, 0)
	for _, edge := range payload.Products.Edges {
		node := edge.Node
		for _, variantEdge := range node.Variants.Edges {
			variant := variantEdge.Node
			rows = append(rows, Row{
				"product_title":      node.Title,
				"variant_title":      variant.Title,
				"quantity_available": variant.InventoryQuantity,
				"price":              variant.Price,
				"sku":                variant.SKU,
			})
		}
	}

	// Low stock first.
	sort.SliceStable(rows, func(i, j int) bool {
		return rowInt(rows[i], "quantity_available") < rowInt(rows[j], "quantity_available")
	})

	return &QueryResult{Data: rows}
}

func (c *Client) ordersFallback(ctx context.Context, entities Entities) *QueryResult {
	limit := pageSize(entities.Limit, 20)

	const query = `
	query getOrders($first: Int!) {
		orders(first: $first, sortKey: CREATED_AT, reverse: true) {
			edges {
				node {
					id
					name
					createdAt
					displayFinancialStatus
					displayFulfillmentStatus
					totalPriceSet {
						shopMoney {
							amount
							currencyCode
						}
					}
					customer {
						displayName
						email
					}
					lineItems(first: 10) {
						edges {
							node {
								title
								quantity
								originalUnitPriceSet {
									shopMoney {
										amount
									}
								}
							}
						}
					}
				}
			}
		}
	}`

	var payload struct {
		Orders struct {
			Edges []struct {
				Node struct {
					ID                       string   `json:"id"`
					Name                     string   `json:"name"`
					CreatedAt                string   `json:"createdAt"`
					DisplayFinancialStatus   string   `json:"displayFinancialStatus"`
					DisplayFulfillmentStatus string   `json:"displayFulfillmentStatus"`
					TotalPriceSet            moneySet `json:"totalPriceSet"`
					Customer                 *struct {
						DisplayName string `json:"displayName"`
						Email       string `json:"email"`
					} `json:"customer"`
					LineItems struct {
						Edges []struct {
							Node struct {
								Title                string   `json:"title"`
								Quantity             int      `json:"quantity"`
								OriginalUnitPriceSet moneySet `json:"originalUnitPriceSet"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"lineItems"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"orders"`
	}

	if err := c.doGraphQL(ctx, query, map[string]any{"first": limit}, &payload); err != nil {
		c.logger.Warn("graphql_orders_error", zap.Error(err))
		return &QueryResult{Error: err.Error(), Data: []Row{}}
	}

	type productTotals struct {
		units   int
		revenue float64
	}

	orders := make([]Row, 0, len(payload.Orders.Edges))
	totals := map[string]*productTotals{}
	totalRevenue := 0.0

	for _, edge := range payload.Orders.Edges {
		node := edge.Node
		amount := parseAmount(node.TotalPriceSet.ShopMoney.Amount)
		totalRevenue += amount

		// Revenue aggregation happens client-side over this page only; the
		// caller sees fallback_used=true and knows this is a page-bounded
		// approximation of server-side aggregation.
		for _, itemEdge := range node.LineItems.Edges {
			item := itemEdge.Node
			title := item.Title
			if title == "" {
				title = "Unknown"
			}
			pt, ok := totals[title]
			if !ok {
				pt = &productTotals{}
				totals[title] = pt
			}
			pt.units += item.Quantity
			pt.revenue += float64(item.Quantity) * parseAmount(item.OriginalUnitPriceSet.ShopMoney.Amount)
		}

		var customer string
		if node.Customer != nil {
			customer = node.Customer.DisplayName
		}
		orders = append(orders, Row{
			"order_name":   node.Name,
			"created_at":   node.CreatedAt,
			"total_amount": amount,
			"currency":     node.TotalPriceSet.ShopMoney.CurrencyCode,
			"status":       node.DisplayFinancialStatus,
			"fulfillment":  node.DisplayFulfillmentStatus,
			"customer":     customer,
		})
	}

	rows := make([]Row, 0, len(totals))
	for title, pt := range totals {
		rows = append(rows, Row{
			"product_title": title,
			"units_sold":    pt.units,
			"total_sales":   round2(pt.revenue),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rowFloat(rows[i], "total_sales") > rowFloat(rows[j], "total_sales")
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	return &QueryResult{
		Data:   rows,
		Orders: orders,
		Summary: map[string]any{
			"total_orders":  len(orders),
			"total_revenue": round2(totalRevenue),
		},
	}
}

func (c *Client) customersFallback(ctx context.Context, entities Entities) *QueryResult {
	limit := pageSize(entities.Limit, 20)

	const query = `
	query getCustomers($first: Int!) {
		customers(first: $first, sortKey: UPDATED_AT, reverse: true) {
			edges {
				node {
					id
					displayName
					email
					ordersCount
					totalSpent
					createdAt
					defaultAddress {
						city
						country
					}
				}
			}
		}
	}`

	var payload struct {
		Customers struct {
			Edges []struct {
				Node struct {
					ID          string `json:"id"`
					DisplayName string `json:"displayName"`
					Email       string `json:"email"`
					// Serialized as a string by newer API versions.
					OrdersCount    json.Number `json:"ordersCount"`
					TotalSpent     string      `json:"totalSpent"`
					CreatedAt      string      `json:"createdAt"`
					DefaultAddress *struct {
						City    string `json:"city"`
						Country string `json:"country"`
					} `json:"defaultAddress"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"customers"`
	}

	if err := c.doGraphQL(ctx, query, map[string]any{"first": limit}, &payload); err != nil {
		c.logger.Warn("graphql_customers_error", zap.Error(err))
		return &QueryResult{Error: err.Error(), Data: []Row{}}
	}

	rows := make([]Row, 0, len(payload.Customers.Edges))
	repeat := 0
	for _, edge := range payload.Customers.Edges {
		node := edge.Node
		var city, country string
		if node.DefaultAddress != nil {
			city = node.DefaultAddress.City
			country = node.DefaultAddress.Country
		}
		ordersCount, _ := node.OrdersCount.Int64()
		if ordersCount > 1 {
			repeat++
		}
		rows = append(rows, Row{
			"customer_name": node.DisplayName,
			"email":         node.Email,
			"orders_count":  ordersCount,
			"total_spent":   node.TotalSpent,
			"city":          city,
			"country":       country,
			"created_at":    node.CreatedAt,
		})
	}

	return &QueryResult{
		Data: rows,
		Summary: map[string]any{
			"total_customers":  len(rows),
			"repeat_customers": repeat,
		},
	}
}

// GetProducts fetches the product listing directly, outside the fallback
// chain.
func (c *Client) GetProducts(ctx context.Context, limit int) ([]Row, error) {
	result := c.productsFallback(ctx, Entities{Limit: limit})
	if result.Error != "" {
		return nil, fmt.Errorf("%s", result.Error)
	}
	return result.Data, nil
}

// GetOrders fetches recent orders directly, outside the fallback chain.
func (c *Client) GetOrders(ctx context.Context, limit int) ([]Row, error) {
	result := c.ordersFallback(ctx, Entities{Limit: limit})
	if result.Error != "" {
		return nil, fmt.Errorf("%s", result.Error)
	}
	return result.Orders, nil
}

func pageSize(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested > maxPageSize {
		return maxPageSize
	}
	return requested
}

func parseAmount(s string) float64 {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return value
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func rowInt(r Row, key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func rowFloat(r Row, key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
