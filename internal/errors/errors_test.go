package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("apply: %w", UnknownField("topic_affinity."))
	if !errors.Is(err, ErrUnknownField) {
		t.Fatal("expected wrapped unknown field to match sentinel")
	}
	if errors.Is(err, ErrPersistence) {
		t.Fatal("unknown field must not match persistence sentinel")
	}
	if GetCode(err) != CodeUnknownField {
		t.Fatalf("expected %s, got %s", CodeUnknownField, GetCode(err))
	}
}

func TestPersistenceUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("commit", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "persist commit: disk full" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestHandleErrorMapsCodes(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{UnknownField("x"), codes.InvalidArgument},
		{NotFound("user"), codes.NotFound},
		{InsufficientSample(1, 5), codes.FailedPrecondition},
		{Persistence("commit", errors.New("boom")), codes.Unavailable},
		{RangeViolation("x", 2, "above max"), codes.Internal},
		{errors.New("plain"), codes.Internal},
	}
	for _, tc := range cases {
		st, ok := status.FromError(HandleError(tc.err))
		if !ok {
			t.Fatalf("expected status for %v", tc.err)
		}
		if st.Code() != tc.want {
			t.Errorf("%v: expected %s, got %s", tc.err, tc.want, st.Code())
		}
	}
	if HandleError(nil) != nil {
		t.Fatal("nil must map to nil")
	}
}

func TestFromGRPCRoundTrip(t *testing.T) {
	err := FromGRPC(HandleError(InsufficientSample(2, 5)))
	if !errors.Is(err, ErrInsufficientSample) {
		t.Fatalf("expected insufficient sample after round trip, got %v", err)
	}
	if FromGRPC(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	plain := errors.New("boom")
	if FromGRPC(plain) != plain {
		t.Fatal("non-status errors pass through")
	}
	internal := status.Error(codes.Internal, "x")
	if FromGRPC(internal) != internal {
		t.Fatal("unmapped codes pass through")
	}
}
