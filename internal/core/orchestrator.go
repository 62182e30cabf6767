package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"merchiq.com/analytics-agent/internal/cache"
	"merchiq.com/analytics-agent/internal/memory"
	"merchiq.com/analytics-agent/internal/shopify"
	"merchiq.com/analytics-agent/internal/store"
)

// QueryExecutor is the per-store execution engine. The production
// implementation is *shopify.Client.
type QueryExecutor interface {
	ExecuteWithFallback(ctx context.Context, query, intent string, entities shopify.Entities) *shopify.QueryResult
}

// ExecutorFactory builds a QueryExecutor for a store and access token. A
// fresh executor is built per request because credentials arrive with the
// request.
type ExecutorFactory func(storeDomain, accessToken string) QueryExecutor

// Request is one inbound analytics question.
type Request struct {
	StoreID        string `json:"store_id"`
	Question       string `json:"question"`
	AccessToken    string `json:"access_token"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Response is the uniform answer shape, well-formed even on failure.
type Response struct {
	Answer         string               `json:"answer"`
	Confidence     string               `json:"confidence"`
	QueryUsed      *string              `json:"query_used"`
	DataSource     string               `json:"data_source,omitempty"`
	FallbackUsed   bool                 `json:"fallback_used"`
	RawData        *shopify.QueryResult `json:"raw_data,omitempty"`
	ConversationID string               `json:"conversation_id"`
	Error          string               `json:"error,omitempty"`
}

// Orchestrator sequences the pipeline:
// classify -> generate -> validate (repair once) -> cache check ->
// execute with fallback -> cache write -> format -> record turn.
type Orchestrator struct {
	classifier    *IntentClassifier
	generator     *QueryGenerator
	validator     *QueryValidator
	formatter     *ResponseFormatter
	cache         *cache.Manager
	conversations *memory.ConversationStore
	history       *store.QueryHistoryStore
	executors     ExecutorFactory
	logger        *zap.Logger
}

// Deps are the orchestrator's collaborators. History may be nil.
type Deps struct {
	Classifier    *IntentClassifier
	Generator     *QueryGenerator
	Validator     *QueryValidator
	Formatter     *ResponseFormatter
	Cache         *cache.Manager
	Conversations *memory.ConversationStore
	History       *store.QueryHistoryStore
	Executors     ExecutorFactory
	Logger        *zap.Logger
}

func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		classifier:    deps.Classifier,
		generator:     deps.Generator,
		validator:     deps.Validator,
		formatter:     deps.Formatter,
		cache:         deps.Cache,
		conversations: deps.Conversations,
		history:       deps.History,
		executors:     deps.Executors,
		logger:        deps.Logger,
	}
}

// ProcessQuestion runs one question through the whole pipeline. It always
// returns a well-formed Response; unexpected panics downstream are converted
// into an error response at this boundary.
func (o *Orchestrator) ProcessQuestion(ctx context.Context, req Request) (resp Response) {
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestration_panic", zap.Any("panic", r), zap.String("store_id", req.StoreID))
			resp = o.errorResponse(convID, fmt.Sprintf("%v", r))
		}
	}()

	start := time.Now()
	history := o.conversations.GetHistory(convID)

	o.logger.Info("processing_question",
		zap.String("store_id", req.StoreID),
		zap.String("question", truncate(req.Question, 100)),
		zap.Bool("has_history", len(history) > 0))

	// Step 1: classify intent.
	classification := o.classifier.Classify(ctx, req.Question, history)

	// Step 2: generate the ShopifyQL query.
	generated := o.generator.Generate(ctx, req.Question, classification.Intent, classification.Entities, history)
	query := generated.Query

	// Step 3: validate, repairing at most once.
	valid, validationErrors := o.validator.Validate(query)
	if !valid {
		o.logger.Warn("query_validation_failed", zap.Strings("errors", validationErrors))

		generated = o.generator.RegenerateWithErrors(ctx, query, validationErrors, req.Question, classification.Intent)
		query = generated.Query

		valid, validationErrors = o.validator.Validate(query)
		if !valid {
			return o.errorResponse(convID,
				"Unable to generate a valid query for your question. Please try rephrasing. "+
					o.validator.SuggestFix(query, validationErrors))
		}
	}

	// Step 4: cache lookup.
	cacheKey := o.cache.Key(req.StoreID, query)
	var result shopify.QueryResult
	cached := o.cache.Get(ctx, cacheKey, &result)

	if !cached {
		// Step 5: execute with the dual-path fallback chain.
		executor := o.executors(req.StoreID, req.AccessToken)
		executed := executor.ExecuteWithFallback(ctx, query, classification.Intent, classification.Entities)
		result = *executed

		if result.FallbackUsed {
			o.logger.Info("query_executed_with_fallback",
				zap.String("source", result.Source),
				zap.String("shopifyql_error", result.PrimaryError))
		}

		o.cache.Set(ctx, cacheKey, &result)
	} else {
		o.logger.Info("cache_hit", zap.String("cache_key", cacheKey))
	}

	o.logger.Info("query_executed", zap.Int("row_count", len(result.Data)))

	// Step 6: format into business prose.
	formatted := o.formatter.Format(ctx, req.Question, classification.Intent, &result)

	o.conversations.AddTurn(convID, req.Question, formatted.Answer, query, classification.Intent)
	o.recordHistory(ctx, req.StoreID, req.Question, classification.Intent, query, &result, formatted.Answer, time.Since(start))

	dataSource := result.Source
	if dataSource == "" {
		dataSource = shopify.SourceShopifyQL
	}

	return Response{
		Answer:         formatted.Answer,
		Confidence:     formatted.Confidence,
		QueryUsed:      &query,
		DataSource:     dataSource,
		FallbackUsed:   result.FallbackUsed,
		RawData:        &result,
		ConversationID: convID,
	}
}

// recordHistory writes the audit row when a history store is configured.
// Failures are logged, never surfaced.
func (o *Orchestrator) recordHistory(ctx context.Context, storeID, question, intent, query string, result *shopify.QueryResult, answer string, elapsed time.Duration) {
	if o.history == nil {
		return
	}

	entry := store.HistoryEntry{
		StoreID:      storeID,
		Question:     question,
		Intent:       intent,
		Query:        query,
		Source:       result.Source,
		FallbackUsed: result.FallbackUsed,
		Answer:       truncate(answer, 500),
		DurationMs:   elapsed.Milliseconds(),
	}
	if err := o.history.Record(ctx, entry); err != nil {
		o.logger.Warn("history_record_error", zap.Error(err))
	}
}

func (o *Orchestrator) errorResponse(conversationID, errorMessage string) Response {
	return Response{
		Answer:         fmt.Sprintf("I encountered an issue processing your question: %s", errorMessage),
		Confidence:     "low",
		ConversationID: conversationID,
		Error:          errorMessage,
	}
}
