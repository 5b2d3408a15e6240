package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/healthwatch/storage"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
)

// ReviewRequestType is the message type for review generation requests.
var ReviewRequestType = message.Type{
	Domain:   "healthwatch",
	Category: "review-request",
	Version:  "v1",
}

// RequestPayload wraps a review.Request for transport on the message bus.
type RequestPayload struct {
	review.Request
}

// Schema returns the message type for RequestPayload.
func (p *RequestPayload) Schema() message.Type {
	return ReviewRequestType
}

// Validate validates the wrapped request.
func (p *RequestPayload) Validate() error {
	return p.Request.Validate()
}

// MarshalJSON marshals the RequestPayload to JSON.
func (p *RequestPayload) MarshalJSON() ([]byte, error) {
	type Alias RequestPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON unmarshals the RequestPayload from JSON.
func (p *RequestPayload) UnmarshalJSON(data []byte) error {
	type Alias RequestPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// parseRequest extracts a review request from a queue message. Requests
// published by TriggerReview arrive as BaseMessage envelopes; bare JSON
// bodies from operator tooling are accepted as a fallback.
func parseRequest(data []byte) (review.Request, error) {
	var req review.Request

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err == nil && baseMsg.Payload() != nil {
		payloadBytes, err := json.Marshal(baseMsg.Payload())
		if err != nil {
			return req, fmt.Errorf("marshal payload: %w", err)
		}
		if err := json.Unmarshal(payloadBytes, &req); err != nil {
			return req, fmt.Errorf("unmarshal request payload: %w", err)
		}
	} else if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("unmarshal request: %w", err)
	}

	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// TriggerParams identifies the service a review is requested for and who
// asked.
type TriggerParams struct {
	WorkspaceID string
	ServiceID   string
	// TriggeredBy is review.TriggeredByAPI or review.TriggeredByScheduler.
	TriggeredBy string
}

// TriggerReview creates a pending review covering the past seven days and
// queues a generation request for it. At most one review per service may be
// pending or generating at a time.
//
// The review row is persisted before the request is published so a consumer
// never sees a request for a missing review. If the publish fails the row is
// marked failed rather than left pending forever.
func TriggerReview(ctx context.Context, nc *natsclient.Client, stores *storage.Stores, subject string, params TriggerParams) (*review.ServiceReview, error) {
	svc, err := stores.Services.Get(ctx, params.WorkspaceID, params.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service %s: %w", params.ServiceID, err)
	}

	active, err := stores.Reviews.HasActive(ctx, params.WorkspaceID, params.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("check active reviews: %w", err)
	}
	if active {
		return nil, fmt.Errorf("service %s already has a review in progress", params.ServiceID)
	}

	now := time.Now().UTC()
	rev := review.New(params.WorkspaceID, params.ServiceID, now.AddDate(0, 0, -7), now)
	rev.ServiceName = svc.Name
	rev.TriggeredBy = params.TriggeredBy
	if err := stores.Reviews.Put(ctx, rev); err != nil {
		return nil, fmt.Errorf("store review: %w", err)
	}

	payload := &RequestPayload{Request: review.Request{
		ReviewID:    rev.ID,
		WorkspaceID: rev.WorkspaceID,
		ServiceID:   rev.ServiceID,
	}}
	msg := message.NewBaseMessage(ReviewRequestType, payload, "healthwatch")
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal request message: %w", err)
	}

	if err := nc.PublishToStream(ctx, subject, data); err != nil {
		pubErr := fmt.Errorf("publish review request: %w", err)
		if failErr := rev.Fail("failed to publish review request", 0); failErr == nil {
			_ = stores.Reviews.Put(ctx, rev)
		}
		recordTrigger(ctx, stores, params.ServiceID, false, "", pubErr.Error(), now)
		return nil, pubErr
	}

	recordTrigger(ctx, stores, params.ServiceID, true, rev.ID, "", now)
	return rev, nil
}

// recordTrigger updates the service's schedule after a trigger attempt.
// Services without a schedule are reviewed on demand only, so a missing
// schedule is not an error.
func recordTrigger(ctx context.Context, stores *storage.Stores, serviceID string, success bool, reviewID, errMsg string, now time.Time) {
	sched, err := stores.Schedules.Get(ctx, serviceID)
	if err != nil {
		return
	}
	sched.RecordTrigger(success, reviewID, errMsg, now)
	_ = stores.Schedules.Put(ctx, sched)
}
