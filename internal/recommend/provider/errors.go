package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/yungbote/neurobridge-recommender/internal/recommend"
)

type Error struct {
	Class    recommend.ErrorClass
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(class recommend.ErrorClass, provider string, err error) *Error {
	return &Error{Class: class, Provider: provider, Err: err}
}

// Classify maps any error returned from a provider call onto the shared taxonomy.
func Classify(err error) recommend.ErrorClass {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Class != "" {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return recommend.ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return recommend.ErrTimeout
	}
	return recommend.ErrUpstream
}

// ClassifyStatus maps an upstream HTTP status onto the taxonomy.
func ClassifyStatus(status int) recommend.ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return recommend.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return recommend.ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return recommend.ErrTimeout
	case status >= 500:
		return recommend.ErrUpstream
	case status >= 400:
		return recommend.ErrBadRequest
	default:
		return recommend.ErrUpstream
	}
}
