package core

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ValidTables is the fixed set of ShopifyQL tables the service knows about.
var ValidTables = []string{"sales", "products", "inventory"}

// ValidFields maps each table to its known field names. Field mismatches are
// diagnostics only: the generator may use fields outside this static
// knowledge, so they must never block execution.
var ValidFields = map[string][]string{
	"sales": {
		"order_id", "product_id", "product_title", "product_type",
		"variant_id", "variant_title", "billing_city", "billing_country",
		"billing_region", "shipping_city", "shipping_country",
		"net_sales", "gross_sales", "discounts", "returns", "taxes",
		"total_sales", "net_quantity", "ordered_quantity", "returned_quantity",
		"day", "hour", "month", "week", "year",
	},
	"products": {
		"product_id", "product_title", "product_type", "vendor", "product_tag",
	},
	"inventory": {
		"product_id", "product_title", "variant_id", "variant_title",
		"quantity_available", "incoming_quantity", "committed_quantity",
		"location_id", "location_name",
	},
}

// AggregateFunctions are the aggregate calls allowed in SHOW clauses.
var AggregateFunctions = []string{"sum", "count", "avg", "min", "max"}

var requiredClauses = []string{"FROM", "SHOW"}

var (
	tableRe     = regexp.MustCompile(`(?i)FROM\s+(\w+)`)
	showRe      = regexp.MustCompile(`(?is)SHOW\s+(.+?)(?:WHERE|GROUP|ORDER|SINCE|LIMIT|$)`)
	fieldRe     = regexp.MustCompile(`(?i)(?:sum|count|avg|min|max)\s*\(\s*(\w+)\s*\)|(\w+)`)
	sinceRe     = regexp.MustCompile(`(?i)SINCE\s+(\S+)`)
	timeShapeRe = regexp.MustCompile(`(?i)^(-\d+[dmy]|today|yesterday|-\d+)$`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

// QueryValidator performs schema-aware structural validation of ShopifyQL
// queries before they are sent to the store. Pure and deterministic.
type QueryValidator struct {
	logger *zap.Logger
}

func NewQueryValidator(logger *zap.Logger) *QueryValidator {
	return &QueryValidator{logger: logger}
}

// Validate checks a query and returns whether it is valid along with every
// hard error found. It accumulates errors rather than stopping at the first.
func (v *QueryValidator) Validate(query string) (bool, []string) {
	if strings.TrimSpace(query) == "" {
		return false, []string{"Query is empty"}
	}
	query = strings.TrimSpace(query)

	var errors []string
	errors = append(errors, v.checkRequiredClauses(query)...)
	errors = append(errors, v.checkTable(query)...)
	v.checkFields(query)
	errors = append(errors, v.checkSyntax(query)...)
	errors = append(errors, v.checkTimeExpressions(query)...)

	if len(errors) > 0 {
		v.logger.Warn("query_validation_failed",
			zap.Strings("errors", errors),
			zap.String("query", truncate(query, 200)))
		return false, errors
	}
	return true, nil
}

func (v *QueryValidator) checkRequiredClauses(query string) []string {
	var errors []string
	upper := strings.ToUpper(query)
	for _, clause := range requiredClauses {
		if !strings.Contains(upper, clause) {
			errors = append(errors, fmt.Sprintf("Missing required clause: %s", clause))
		}
	}
	return errors
}

func (v *QueryValidator) checkTable(query string) []string {
	match := tableRe.FindStringSubmatch(query)
	if match == nil {
		return []string{"Could not find table name after FROM clause"}
	}

	table := strings.ToLower(match[1])
	for _, valid := range ValidTables {
		if table == valid {
			return nil
		}
	}
	return []string{fmt.Sprintf("Invalid table: '%s'. Valid tables are: %s",
		table, strings.Join(ValidTables, ", "))}
}

// checkFields inspects the SHOW clause for unknown field names. Findings are
// logged at debug level only, never returned as errors.
func (v *QueryValidator) checkFields(query string) {
	tableMatch := tableRe.FindStringSubmatch(query)
	if tableMatch == nil {
		return
	}
	table := strings.ToLower(tableMatch[1])
	validFields, ok := ValidFields[table]
	if !ok {
		return
	}

	showMatch := showRe.FindStringSubmatch(query)
	if showMatch == nil {
		return
	}
	showClause := showMatch[1]

	for _, match := range fieldRe.FindAllStringSubmatch(showClause, -1) {
		field := match[1]
		if field == "" {
			field = match[2]
		}
		field = strings.ToLower(field)

		if field == "as" || field == "asc" || field == "desc" || isAggregate(field) {
			continue
		}
		if digitsRe.MatchString(field) {
			continue
		}
		if containsFold(validFields, field) || isAlias(field, showClause) {
			continue
		}

		v.logger.Debug("potential_invalid_field",
			zap.String("field", field),
			zap.String("table", table))
	}
}

func (v *QueryValidator) checkSyntax(query string) []string {
	var errors []string
	upper := strings.ToUpper(query)

	fromPos := strings.Index(upper, "FROM")
	showPos := strings.Index(upper, "SHOW")
	if fromPos != -1 && showPos != -1 && fromPos > showPos {
		errors = append(errors, "FROM clause should come before SHOW clause")
	}

	if strings.Count(query, "(") != strings.Count(query, ")") {
		errors = append(errors, "Unbalanced parentheses in query")
	}

	return errors
}

func (v *QueryValidator) checkTimeExpressions(query string) []string {
	var errors []string
	upper := strings.ToUpper(query)

	if strings.Contains(upper, "SINCE") {
		if match := sinceRe.FindStringSubmatch(query); match != nil {
			if !timeShapeRe.MatchString(match[1]) {
				// Shape mismatches are diagnostic only; Shopify accepts more
				// time expressions than this validator models.
				v.logger.Debug("unusual_time_expression", zap.String("since_value", match[1]))
			}
		}
	}

	if strings.Contains(upper, "UNTIL") && !strings.Contains(upper, "SINCE") {
		errors = append(errors, "UNTIL clause used without SINCE clause")
	}

	return errors
}

// SuggestFix maps known validation errors to remediation hints.
func (v *QueryValidator) SuggestFix(query string, errors []string) string {
	var suggestions []string
	for _, err := range errors {
		switch {
		case strings.Contains(err, "Missing required clause: FROM"):
			suggestions = append(suggestions, "Add 'FROM <table>' clause (e.g., FROM sales)")
		case strings.Contains(err, "Missing required clause: SHOW"):
			suggestions = append(suggestions, "Add 'SHOW <fields>' clause to specify what data to return")
		case strings.Contains(err, "Invalid table"):
			suggestions = append(suggestions, fmt.Sprintf("Use one of the valid tables: %s", strings.Join(ValidTables, ", ")))
		case strings.Contains(err, "Unbalanced parentheses"):
			suggestions = append(suggestions, "Check that all opening parentheses have matching closing ones")
		}
	}

	if len(suggestions) == 0 {
		return "Review query syntax"
	}
	return strings.Join(suggestions, "; ")
}

func isAggregate(name string) bool {
	for _, fn := range AggregateFunctions {
		if name == fn {
			return true
		}
	}
	return false
}

func isAlias(field, clause string) bool {
	aliasRe := regexp.MustCompile(`(?i)AS\s+` + regexp.QuoteMeta(field))
	return aliasRe.MatchString(clause)
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
