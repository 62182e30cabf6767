package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidate(t *testing.T) {
	validator := NewQueryValidator(zap.NewNop())

	tests := []struct {
		name       string
		query      string
		wantValid  bool
		wantErrors []string
	}{
		{
			name:       "empty query",
			query:      "   ",
			wantValid:  false,
			wantErrors: []string{"Query is empty"},
		},
		{
			name:       "missing FROM",
			query:      "SHOW product_title",
			wantValid:  false,
			wantErrors: []string{"Missing required clause: FROM", "Could not find table name after FROM clause"},
		},
		{
			name:       "missing SHOW",
			query:      "FROM sales",
			wantValid:  false,
			wantErrors: []string{"Missing required clause: SHOW"},
		},
		{
			name:      "invalid table",
			query:     "FROM refunds SHOW total",
			wantValid: false,
			wantErrors: []string{
				"Invalid table: 'refunds'. Valid tables are: sales, products, inventory",
			},
		},
		{
			name:       "SHOW before FROM",
			query:      "SHOW product_title FROM sales",
			wantValid:  false,
			wantErrors: []string{"FROM clause should come before SHOW clause"},
		},
		{
			name:       "unbalanced parentheses",
			query:      "FROM sales SHOW sum(net_sales",
			wantValid:  false,
			wantErrors: []string{"Unbalanced parentheses in query"},
		},
		{
			name:       "UNTIL without SINCE",
			query:      "FROM sales SHOW net_sales UNTIL today",
			wantValid:  false,
			wantErrors: []string{"UNTIL clause used without SINCE clause"},
		},
		{
			name:      "simple valid query",
			query:     "FROM sales SHOW product_title, sum(net_sales) AS total_sales GROUP BY product_title",
			wantValid: true,
		},
		{
			name:      "valid query lowercase clauses",
			query:     "from inventory show product_title, quantity_available order by quantity_available asc limit 10",
			wantValid: true,
		},
		{
			name:      "unknown fields are not hard errors",
			query:     "FROM sales SHOW mystery_metric, another_unknown SINCE -7d UNTIL today",
			wantValid: true,
		},
		{
			name:      "valid query with time bounds and limit",
			query:     "FROM sales SHOW product_title, sum(net_quantity) AS units SINCE -30d UNTIL today GROUP BY product_title ORDER BY units DESC LIMIT 5",
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, errors := validator.Validate(tt.query)
			assert.Equal(t, tt.wantValid, valid)
			for _, want := range tt.wantErrors {
				assert.Contains(t, errors, want)
			}
			if tt.wantValid {
				assert.Empty(t, errors)
			}
		})
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	validator := NewQueryValidator(zap.NewNop())

	valid, errors := validator.Validate("SHOW sum(net_sales FROM refunds UNTIL today")
	require.False(t, valid)

	assert.Contains(t, errors, "Invalid table: 'refunds'. Valid tables are: sales, products, inventory")
	assert.Contains(t, errors, "FROM clause should come before SHOW clause")
	assert.Contains(t, errors, "Unbalanced parentheses in query")
	assert.Contains(t, errors, "UNTIL clause used without SINCE clause")
}

func TestSuggestFix(t *testing.T) {
	validator := NewQueryValidator(zap.NewNop())

	suggestion := validator.SuggestFix("", []string{"Missing required clause: FROM"})
	assert.Contains(t, suggestion, "FROM <table>")

	suggestion = validator.SuggestFix("", []string{"Missing required clause: SHOW"})
	assert.Contains(t, suggestion, "SHOW <fields>")

	suggestion = validator.SuggestFix("", []string{"Invalid table: 'foo'"})
	assert.Contains(t, suggestion, "sales, products, inventory")

	suggestion = validator.SuggestFix("", []string{"something unrecognized"})
	assert.Equal(t, "Review query syntax", suggestion)
}
