package minio

import (
	"context"
	"errors"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"

	"github.com/lofcz/minfold/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want func(error) bool
	}{
		{"nil stays nil", nil, nil},
		{"deadline", context.DeadlineExceeded, errs.IsTimeout},
		{"missing key", miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, errs.IsNotFound},
		{"bad credentials", miniogo.ErrorResponse{Code: "InvalidAccessKeyId", StatusCode: 403}, errs.IsConnectionFailed},
		{"code wins over status", miniogo.ErrorResponse{Code: "SlowDown", StatusCode: 503}, errs.IsTimeout},
		{"bad object name", miniogo.ErrorResponse{Code: "InvalidObjectName", StatusCode: 400}, errs.IsInvalidInput},
		{"unknown code falls back to status", miniogo.ErrorResponse{Code: "Teapot", StatusCode: 404}, errs.IsNotFound},
		{"anything else", errors.New("connection reset"), errs.IsConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "put object")
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.True(t, tt.want(got))
		})
	}
}
