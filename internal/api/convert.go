package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"quantlab/internal/domain"
)

// toStruct converts a JSON-encodable value into a Struct through its JSON
// form, so report.Float keeps its null and "Infinity" encodings.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding %T as an object: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into the JSON-tagged value v.
func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}

// statusFor maps an engine error to a gRPC status by error kind.
func statusFor(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, domain.ErrInvalidPrice):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrInsufficientData), errors.Is(err, domain.ErrDivisionByZero):
		code = codes.FailedPrecondition
	default:
		if s, ok := status.FromError(err); ok {
			return s.Err()
		}
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
