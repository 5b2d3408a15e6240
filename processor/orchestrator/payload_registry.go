package orchestrator

import "github.com/c360studio/semstreams/component"

func init() {
	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "healthwatch",
		Category:    "review-request",
		Version:     "v1",
		Description: "Request to generate a weekly health review for a service",
		Factory:     func() any { return &RequestPayload{} },
	}); err != nil {
		panic("failed to register review request payload: " + err.Error())
	}
}
