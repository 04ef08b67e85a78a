package jobctrl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	TaskTypeMathOp       = "math_op"
	TaskTypeTextReverse  = "text_reverse"
	TaskTypeMockAPIFetch = "mock_api_fetch"
)

var ErrDivisionByZero = errors.New("division by zero")

type MathPayload struct {
	Operation string  `json:"operation"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

type MathResult struct {
	Result float64 `json:"result"`
}

type TextPayload struct {
	Text string `json:"text"`
}

type TextResult struct {
	Result string `json:"result"`
}

type FetchPayload struct {
	URL string `json:"url"`
}

type FetchResult struct {
	Status int    `json:"status"`
	Data   string `json:"data"`
}

// BuiltinOptions sets the simulated work time of the built-in tasks.
type BuiltinOptions struct {
	// WorkLatency is spent by math_op and text_reverse.
	WorkLatency time.Duration
	// FetchLatency is spent by mock_api_fetch.
	FetchLatency time.Duration
}

func DefaultBuiltinOptions() BuiltinOptions {
	return BuiltinOptions{
		WorkLatency:  500 * time.Millisecond,
		FetchLatency: 2 * time.Second,
	}
}

// RegisterBuiltinTasks registers math_op, text_reverse and mock_api_fetch.
func RegisterBuiltinTasks(r *Registry, opts BuiltinOptions) {
	RegisterTyped(r, TaskTypeMathOp, func(ctx context.Context, p MathPayload) (MathResult, error) {
		if err := sleep(ctx, opts.WorkLatency); err != nil {
			return MathResult{}, err
		}
		return MathOp(p)
	})

	RegisterTyped(r, TaskTypeTextReverse, func(ctx context.Context, p TextPayload) (TextResult, error) {
		if err := sleep(ctx, opts.WorkLatency); err != nil {
			return TextResult{}, err
		}
		return TextResult{Result: Reverse(p.Text)}, nil
	})

	RegisterTyped(r, TaskTypeMockAPIFetch, func(ctx context.Context, p FetchPayload) (FetchResult, error) {
		u, err := url.ParseRequestURI(p.URL)
		if err != nil || u.Host == "" {
			return FetchResult{}, fmt.Errorf("invalid url %q", p.URL)
		}
		if err := sleep(ctx, opts.FetchLatency); err != nil {
			return FetchResult{}, err
		}
		return FetchResult{Status: 200, Data: "Mock data for " + p.URL}, nil
	})
}

// MathOp evaluates a binary arithmetic operation.
func MathOp(p MathPayload) (MathResult, error) {
	switch p.Operation {
	case "add":
		return MathResult{Result: p.A + p.B}, nil
	case "subtract":
		return MathResult{Result: p.A - p.B}, nil
	case "multiply":
		return MathResult{Result: p.A * p.B}, nil
	case "divide":
		if p.B == 0 {
			return MathResult{}, ErrDivisionByZero
		}
		return MathResult{Result: p.A / p.B}, nil
	default:
		return MathResult{}, fmt.Errorf("unknown operation: %s", p.Operation)
	}
}

// Reverse reverses s by rune.
func Reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
