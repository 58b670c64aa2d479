package preseed

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryUnknownOS(t *testing.T) {
	reg := NewRegistry()
	res := reg.Preseed(context.Background(), KindCurtin, Machine{OSystem: "plan9"}, CredentialTriple{}, "http://rack/metadata")
	if res.Outcome != OutcomeUnknownOS {
		t.Fatalf("outcome = %v, want OutcomeUnknownOS", res.Outcome)
	}
	if !errors.Is(res.Err, ErrUnknownOS) {
		t.Fatalf("err = %v, want ErrUnknownOS", res.Err)
	}
}

func TestRegistryDispatchIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Ubuntu", DelegateFunc(func(ctx context.Context, kind RequestKind, m Machine, creds CredentialTriple, metadataURL string) Result {
		return Handled([]byte("payload"))
	}))

	res := reg.Preseed(context.Background(), KindCurtin, Machine{OSystem: "ubuntu"}, CredentialTriple{}, "")
	if res.Outcome != OutcomeHandled || string(res.Payload) != "payload" {
		t.Fatalf("result = %+v", res)
	}
}

func TestUnreachableWrapsSentinel(t *testing.T) {
	res := Unreachable(errors.New("dial tcp: connection refused"))
	if res.Outcome != OutcomeUnreachable {
		t.Fatalf("outcome = %v, want OutcomeUnreachable", res.Outcome)
	}
	if !errors.Is(res.Err, ErrRackUnreachable) {
		t.Fatalf("err = %v, want ErrRackUnreachable", res.Err)
	}

	if bare := Unreachable(nil); !errors.Is(bare.Err, ErrRackUnreachable) {
		t.Fatalf("bare err = %v, want ErrRackUnreachable", bare.Err)
	}
}
