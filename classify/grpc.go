package classify

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCClassifier applies the same taxonomy to gRPC status errors.
// The statusCode argument is ignored; the code is read from err.
type GRPCClassifier struct {
	// RefreshOnPermissionDenied treats PermissionDenied like Unauthenticated
	RefreshOnPermissionDenied bool
}

// Classify implements Classifier.
func (c GRPCClassifier) Classify(_ int, err error) Outcome {
	if err == nil {
		return Outcome{Kind: Success, Reason: ReasonSuccess}
	}
	if errors.Is(err, context.Canceled) {
		return Outcome{Kind: Fatal, Reason: ReasonCanceled, Err: err}
	}

	st, ok := status.FromError(err)
	if !ok {
		return classifyError(0, err)
	}

	out := Outcome{Err: err, Reason: "grpc_" + st.Code().String()}
	switch st.Code() {
	case codes.OK:
		out.Kind, out.Reason, out.Err = Success, ReasonSuccess, nil
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		out.Kind = Retryable
	case codes.Unauthenticated:
		out.Kind = AuthExpired
	case codes.PermissionDenied:
		if c.RefreshOnPermissionDenied {
			out.Kind = AuthExpired
		} else {
			out.Kind = Fatal
		}
	default:
		out.Kind = Fatal
	}
	return out
}
