package callout

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrAllProvidersExhausted is returned once every provider in the fallback list
// has spent its full retry budget.
var ErrAllProvidersExhausted = errors.New("callout: all providers exhausted")

// Provider is one entry in an ordered fallback list.
type Provider[T any] struct {
	Name string
	Call func(ctx context.Context) (T, error)
}

// Result pairs a successful value with the provider that ultimately served it.
type Result[T any] struct {
	Value    T
	Provider string
}

// Fallback tries each provider in order, giving each the policy's full retry
// budget from attempt zero. Only when every provider fails does the call fail.
func Fallback[T any](ctx context.Context, p Policy, label string, providers []Provider[T]) (Result[T], error) {
	if len(providers) == 0 {
		return Result[T]{}, fmt.Errorf("%w: %s: empty provider list", ErrAllProvidersExhausted, label)
	}

	var lastErr error
	for _, prov := range providers {
		out, err := Do(ctx, p, label+"/"+prov.Name, prov.Call)
		if err == nil {
			return Result[T]{Value: out, Provider: prov.Name}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Result[T]{}, ctx.Err()
		}
		log.Printf("[callout:%s] provider %s exhausted, falling back: %v", label, prov.Name, err)
	}
	return Result[T]{}, fmt.Errorf("%w: %s: %v", ErrAllProvidersExhausted, label, lastErr)
}
