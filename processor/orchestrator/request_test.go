package orchestrator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/c360studio/healthwatch/review"
	"github.com/c360studio/semstreams/message"
)

func TestParseRequest_BaseMessageEnvelope(t *testing.T) {
	// Simulates TriggerReview publish: BaseMessage wrapping a RequestPayload.
	want := review.Request{
		ReviewID:    "rev-123",
		WorkspaceID: "ws-456",
		ServiceID:   "svc-789",
	}

	baseMsg := message.NewBaseMessage(ReviewRequestType, &RequestPayload{Request: want}, "healthwatch")
	wire, err := json.Marshal(baseMsg)
	if err != nil {
		t.Fatal(err)
	}

	got, err := parseRequest(wire)
	if err != nil {
		t.Fatalf("parseRequest: %v", err)
	}

	if got != want {
		t.Errorf("parseRequest() = %+v, want %+v", got, want)
	}
}

func TestParseRequest_RawJSON(t *testing.T) {
	// Fallback: plain JSON body from operator tooling.
	wire := []byte(`{"review_id":"rev-1","workspace_id":"ws-2","service_id":"svc-3"}`)

	got, err := parseRequest(wire)
	if err != nil {
		t.Fatalf("parseRequest: %v", err)
	}

	if got.ReviewID != "rev-1" {
		t.Errorf("ReviewID = %q, want %q", got.ReviewID, "rev-1")
	}
	if got.WorkspaceID != "ws-2" {
		t.Errorf("WorkspaceID = %q, want %q", got.WorkspaceID, "ws-2")
	}
	if got.ServiceID != "svc-3" {
		t.Errorf("ServiceID = %q, want %q", got.ServiceID, "svc-3")
	}
}

func TestParseRequest_InvalidJSON(t *testing.T) {
	if _, err := parseRequest([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseRequest_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing review_id",
			body: `{"workspace_id":"ws","service_id":"svc"}`,
			want: "review_id",
		},
		{
			name: "missing workspace_id",
			body: `{"review_id":"rev","service_id":"svc"}`,
			want: "workspace_id",
		},
		{
			name: "missing service_id",
			body: `{"review_id":"rev","workspace_id":"ws"}`,
			want: "service_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRequest([]byte(tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRequestPayload_JSON(t *testing.T) {
	payload := RequestPayload{Request: review.Request{
		ReviewID:    "rev-abc",
		WorkspaceID: "ws-def",
		ServiceID:   "svc-ghi",
	}}

	data, err := json.Marshal(&payload)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !strings.Contains(string(data), `"review_id":"rev-abc"`) {
		t.Errorf("JSON does not contain review_id: %s", data)
	}

	var decoded RequestPayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Request != payload.Request {
		t.Errorf("round trip = %+v, want %+v", decoded.Request, payload.Request)
	}
}

func TestRequestPayload_Schema(t *testing.T) {
	p := &RequestPayload{}
	typ := p.Schema()
	if typ.Domain != "healthwatch" || typ.Category != "review-request" || typ.Version != "v1" {
		t.Errorf("Schema() = %+v, want healthwatch/review-request/v1", typ)
	}
}
