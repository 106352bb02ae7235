package provider

import (
	"context"
	"fmt"
	"sync"
)

// Func adapts a function to the gateway transport contract.
type Func func(ctx context.Context, operation string, params map[string]string) (map[string]any, error)

// Call implements gateway.Transport.
func (f Func) Call(ctx context.Context, operation string, params map[string]string) (map[string]any, error) {
	return f(ctx, operation, params)
}

// Scripted serves canned payloads per operation and counts calls. It backs
// demos and tests that need a provider without a network.
type Scripted struct {
	mu        sync.Mutex
	responses map[string]map[string]any
	errs      map[string]error
	calls     map[string]int
}

// NewScripted creates an empty scripted transport.
func NewScripted() *Scripted {
	return &Scripted{
		responses: make(map[string]map[string]any),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

// Respond sets the payload returned for operation.
func (s *Scripted) Respond(operation string, data map[string]any) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[operation] = data
	delete(s.errs, operation)
	return s
}

// Fail makes every call to operation return err.
func (s *Scripted) Fail(operation string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[operation] = err
	return s
}

// Calls returns how many times operation was invoked.
func (s *Scripted) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// Call implements gateway.Transport.
func (s *Scripted) Call(ctx context.Context, operation string, _ map[string]string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[operation]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.errs[operation]; ok {
		return nil, err
	}
	data, ok := s.responses[operation]
	if !ok {
		return nil, &StatusError{Provider: "scripted", StatusCode: 404, Body: fmt.Sprintf("no response for %q", operation)}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out, nil
}
