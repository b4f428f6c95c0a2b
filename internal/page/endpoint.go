// Package page answers the agent's questions about a page. It runs beside
// the recorder in the page context and is reached through messaging.Call.
package page

import (
	"context"
	"io"
	"log/slog"

	"innexbot/internal/eventstream"
	"innexbot/internal/matcher"
	dErrors "innexbot/pkg/domain-errors"
)

// MessageType names a request the endpoint understands.
type MessageType string

const (
	CheckEvent        MessageType = "CHECK_EVENT"
	GetDataLayerState MessageType = "GET_DATALAYER_STATE"
	GetPageType       MessageType = "GET_PAGE_TYPE"
	ClearEvents       MessageType = "CLEAR_EVENTS"
)

// MessageEmptyLayer is reported when there is nothing to search.
const MessageEmptyLayer = "dataLayer is empty or not found"

// Request is a message sent to the page.
type Request struct {
	Type      MessageType `json:"type"`
	EventType string      `json:"eventType,omitempty"`
}

// Response carries exactly one of Result, State or PageType depending on the
// request type.
type Response struct {
	Success  bool                 `json:"success"`
	Result   *matcher.Result      `json:"result,omitempty"`
	State    *eventstream.State   `json:"state,omitempty"`
	PageType eventstream.PageType `json:"pageType,omitempty"`
}

// Endpoint serves page requests from a recorder's history.
type Endpoint struct {
	recorder *eventstream.Recorder
	matcher  *matcher.Matcher
	logger   *slog.Logger
}

type Option func(*Endpoint)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

func WithMatcher(m *matcher.Matcher) Option {
	return func(e *Endpoint) {
		if m != nil {
			e.matcher = m
		}
	}
}

func NewEndpoint(recorder *eventstream.Recorder, opts ...Option) *Endpoint {
	e := &Endpoint{
		recorder: recorder,
		matcher:  matcher.New(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle dispatches a request. Unknown types are a bad request.
func (e *Endpoint) Handle(ctx context.Context, req Request) (Response, error) {
	switch req.Type {
	case CheckEvent:
		res, err := e.CheckEvent(ctx, req.EventType)
		if err != nil {
			return Response{}, err
		}
		return Response{Success: true, Result: &res}, nil
	case GetDataLayerState:
		st, err := e.State(ctx)
		if err != nil {
			return Response{}, err
		}
		return Response{Success: true, State: &st}, nil
	case GetPageType:
		return Response{Success: true, PageType: e.recorder.PageType()}, nil
	case ClearEvents:
		e.recorder.Clear()
		e.logger.DebugContext(ctx, "recorded events cleared")
		return Response{Success: true}, nil
	default:
		return Response{}, dErrors.New(dErrors.CodeBadRequest, "unknown message type: "+string(req.Type))
	}
}

// CheckEvent searches recorded history for eventType.
func (e *Endpoint) CheckEvent(ctx context.Context, eventType string) (matcher.Result, error) {
	if err := ctx.Err(); err != nil {
		return matcher.Result{}, err
	}
	if eventType == "" {
		return matcher.Result{}, dErrors.New(dErrors.CodeValidation, "eventType is required")
	}
	history := e.recorder.History()
	if len(history) == 0 || !e.recorder.QueryState().Exists {
		return matcher.Result{Found: false, Message: MessageEmptyLayer}, nil
	}
	res := e.matcher.Find(eventType, history)
	e.logger.DebugContext(ctx, "event checked",
		"event_type", eventType,
		"found", res.Found,
		"matched", res.Matched,
	)
	return res, nil
}

// State reports the page's tracking state.
func (e *Endpoint) State(ctx context.Context) (eventstream.State, error) {
	if err := ctx.Err(); err != nil {
		return eventstream.State{}, err
	}
	return e.recorder.QueryState(), nil
}
