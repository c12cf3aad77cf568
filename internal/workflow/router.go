package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/maestro-go/maestro/internal/llm"
)

// QueryType classifies an incoming query for routing.
type QueryType string

const (
	QueryGeneral   QueryType = "GENERAL"
	QueryTechnical QueryType = "TECHNICAL"
	QueryRefund    QueryType = "REFUND"
	QueryUnknown   QueryType = "UNKNOWN"
)

// Handler processes a query of one type.
type Handler func(ctx context.Context, query string) (string, error)

// Router classifies queries with the model and dispatches to registered
// handlers. Handler selection is the caller's concern, not embedded logic.
type Router struct {
	client   llm.Client
	handlers map[QueryType]Handler
}

// NewRouter creates a router over the given client.
func NewRouter(client llm.Client) *Router {
	return &Router{
		client:   client,
		handlers: make(map[QueryType]Handler),
	}
}

// Register installs a handler for a query type, replacing any existing one.
func (r *Router) Register(queryType QueryType, handler Handler) {
	r.handlers[queryType] = handler
}

const classificationPromptFormat = `Classify the following customer query into one of these categories:
- GENERAL: General product questions
- TECHNICAL: Technical support issues
- REFUND: Refund requests
- UNKNOWN: Cannot be classified

Query: %s

Respond with only the category name.`

// Classify asks the model which category the query belongs to.
// Unrecognized answers map to QueryUnknown.
func (r *Router) Classify(ctx context.Context, query string) (QueryType, error) {
	response, err := r.client.Complete(ctx, fmt.Sprintf(classificationPromptFormat, query))
	if err != nil {
		return QueryUnknown, fmt.Errorf("classifying query: %w", err)
	}

	switch QueryType(strings.ToUpper(strings.TrimSpace(response))) {
	case QueryGeneral:
		return QueryGeneral, nil
	case QueryTechnical:
		return QueryTechnical, nil
	case QueryRefund:
		return QueryRefund, nil
	default:
		return QueryUnknown, nil
	}
}

// Route classifies the query and invokes the matching handler.
func (r *Router) Route(ctx context.Context, query string) (string, error) {
	queryType, err := r.Classify(ctx, query)
	if err != nil {
		return "", err
	}

	handler, ok := r.handlers[queryType]
	if !ok {
		return "", fmt.Errorf("no handler registered for query type %s", queryType)
	}

	return handler(ctx, query)
}
