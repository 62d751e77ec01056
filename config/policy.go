package config

import (
	"github.com/gaborage/go-retrier/backoff"
	"github.com/gaborage/go-retrier/classify"
)

// Classifier returns the HTTP classifier described by the retry section.
func (r RetryConfig) Classifier() classify.HTTPClassifier {
	return classify.HTTPClassifier{
		Forbidden:    classify.ForbiddenPolicy(r.Forbidden),
		Retryable4xx: append([]int(nil), r.Retryable4xx...),
	}
}

// BackoffPolicy builds the backoff policy described by the retry section.
func (r RetryConfig) BackoffPolicy() (backoff.Policy, error) {
	return backoff.New(r.Backoff)
}
