package preseed

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Outcome tags the result of asking an OS delegate for preseed content.
type Outcome int

const (
	// OutcomeHandled means the delegate produced the full document.
	OutcomeHandled Outcome = iota
	// OutcomeNotSupported means the OS has no special preseed content for
	// this request kind. It is a normal branch, not a failure, and must
	// never be retried.
	OutcomeNotSupported
	// OutcomeUnknownOS means no delegate knows the machine's OS.
	OutcomeUnknownOS
	// OutcomeUnreachable means the machine's rack controller could not be
	// reached to render OS-specific content.
	OutcomeUnreachable
)

// Result carries a delegate outcome together with its payload or error
// detail. Only Handled results carry a payload; only UnknownOS and
// Unreachable carry an error.
type Result struct {
	Outcome Outcome
	Payload []byte
	Err     error
}

// Handled wraps delegate-produced bytes.
func Handled(payload []byte) Result {
	return Result{Outcome: OutcomeHandled, Payload: payload}
}

// NotSupported reports that the OS declines to provide special content.
func NotSupported() Result {
	return Result{Outcome: OutcomeNotSupported}
}

// UnknownOS reports an operating system no delegate is registered for.
func UnknownOS(osystem string) Result {
	return Result{
		Outcome: OutcomeUnknownOS,
		Err:     fmt.Errorf("%w: %q", ErrUnknownOS, osystem),
	}
}

// Unreachable reports a transport failure talking to the rack controller.
func Unreachable(err error) Result {
	if err == nil {
		return Result{Outcome: OutcomeUnreachable, Err: ErrRackUnreachable}
	}
	return Result{
		Outcome: OutcomeUnreachable,
		Err:     fmt.Errorf("%w: %v", ErrRackUnreachable, err),
	}
}

// Delegate produces OS-specific preseed content for one OS family.
type Delegate interface {
	Preseed(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result
}

// DelegateFunc adapts a plain function to the Delegate interface.
type DelegateFunc func(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result

func (f DelegateFunc) Preseed(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result {
	return f(ctx, kind, m, creds, metadataURL)
}

// Registry resolves OS names to their delegates. A lookup miss is reported
// as UnknownOS so the composer can propagate it unchanged.
type Registry struct {
	mu        sync.RWMutex
	delegates map[string]Delegate
}

// NewRegistry returns an empty delegate registry.
func NewRegistry() *Registry {
	return &Registry{delegates: make(map[string]Delegate)}
}

// Register binds a delegate to an OS name, replacing any previous binding.
func (r *Registry) Register(osystem string, d Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegates[strings.ToLower(osystem)] = d
}

// Preseed routes the request to the delegate for the machine's OS.
func (r *Registry) Preseed(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result {
	r.mu.RLock()
	d, ok := r.delegates[strings.ToLower(m.OSystem)]
	r.mu.RUnlock()
	if !ok {
		return UnknownOS(m.OSystem)
	}
	return d.Preseed(ctx, kind, m, creds, metadataURL)
}
