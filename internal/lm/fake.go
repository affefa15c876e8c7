package lm

import (
	"context"
	"fmt"
)

// Fake is a deterministic, hermetic Capability for tests. Responses is
// keyed by prompt; FailPrompts marks prompts that should return Err
// (defaulting to a generic failure when Err is nil); an already-done
// ctx returns ctx.Err(), so timeout behavior can be exercised without a
// real clock dependency leaking into the capability itself.
type Fake struct {
	Responses   map[string]string
	FailPrompts map[string]bool
	Err         error
	Calls       int
}

func (f *Fake) Complete(ctx context.Context, prompt, modelID string, opts Options) (string, error) {
	f.Calls++

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if f.FailPrompts != nil && f.FailPrompts[prompt] {
		if f.Err != nil {
			return "", f.Err
		}
		return "", fmt.Errorf("fake lm capability: forced failure for prompt")
	}

	if resp, ok := f.Responses[prompt]; ok {
		return resp, nil
	}
	return "", nil
}
