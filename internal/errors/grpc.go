package errors

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// GRPCCode maps a domain code to its gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeUnknownField, CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeNotFound:
		return codes.NotFound
	case CodeInsufficientSample:
		return codes.FailedPrecondition
	case CodePersistence:
		return codes.Unavailable
	case CodeRangeViolation:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// HandleError converts domain errors to gRPC status for client responses.
func HandleError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return status.Error(appErr.Code.GRPCCode(), appErr.Error())
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}

// FromGRPC converts a gRPC status error back into a domain error so clients can
// match it with errors.Is.
func FromGRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var code Code
	switch st.Code() {
	case codes.InvalidArgument:
		code = CodeInvalidArgument
	case codes.NotFound:
		code = CodeNotFound
	case codes.FailedPrecondition:
		code = CodeInsufficientSample
	case codes.Unavailable:
		code = CodePersistence
	default:
		return err
	}
	return &Error{Code: code, Message: st.Message()}
}
