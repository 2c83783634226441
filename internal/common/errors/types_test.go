package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name: "basic error",
			appError: &AppError{
				Type:    ErrTypeConfig,
				Message: "configuration is invalid",
			},
			want: "config: configuration is invalid",
		},
		{
			name: "error with code",
			appError: &AppError{
				Type:    ErrTypeService,
				Message: "remote service responded with status 404",
				Code:    "ConversationNotFound",
			},
			want: "service: remote service responded with status 404: code=ConversationNotFound",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Type:    ErrTypeTransport,
				Message: "request failed",
				Cause:   errors.New("connection refused"),
			},
			want: "transport: request failed: cause=connection refused",
		},
		{
			name: "context keys are sorted",
			appError: &AppError{
				Type:    ErrTypeConflict,
				Message: "report already recorded",
				Context: map[string]interface{}{
					"report_id": "r-2",
					"card_id":   "c-1",
				},
			},
			want: "conflict: report already recorded: context={card_id=c-1, report_id=r-2}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	appErr := CredentialError("token request failed", cause)

	assert.Same(t, cause, appErr.Unwrap())
	assert.True(t, errors.Is(appErr, cause))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
		wantMsg  string
	}{
		{"credential", CredentialError("token endpoint returned 401", nil), ErrTypeCredential, "token endpoint returned 401"},
		{"transport", TransportError("dial failed", nil), ErrTypeTransport, "dial failed"},
		{"not found", NotFoundError("feedback card"), ErrTypeNotFound, "feedback card not found"},
		{"conflict", ConflictError("feedback card already exists"), ErrTypeConflict, "feedback card already exists"},
		{"missing value", MissingValueError("replyToId"), ErrTypeMissingValue, "missing value: replyToId"},
		{"validation", ValidationError("rating out of range"), ErrTypeValidation, "rating out of range"},
		{"timeout", TimeoutError("lock acquisition"), ErrTypeTimeout, "timeout during lock acquisition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantMsg, tt.err.Message)
		})
	}
}

func TestServiceError(t *testing.T) {
	err := ServiceError(403, "forbidden")

	assert.Equal(t, ErrTypeService, err.Type)
	assert.Equal(t, 403, err.Context["status"])
	assert.Equal(t, "forbidden", err.Context["body"])
	assert.Equal(t, 403, ServiceStatus(err))
	assert.Equal(t, 403, ServiceStatus(fmt.Errorf("send report: %w", err)))
	assert.Equal(t, 0, ServiceStatus(NotFoundError("user")))
	assert.Equal(t, 0, ServiceStatus(nil))
}

func TestIsType(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType ErrorType
		want    bool
	}{
		{"nil error", nil, ErrTypeNotFound, false},
		{"plain error", errors.New("boom"), ErrTypeInternal, false},
		{"matching type", NotFoundError("card"), ErrTypeNotFound, true},
		{"different type", NotFoundError("card"), ErrTypeConflict, false},
		{"wrapped app error", fmt.Errorf("lookup: %w", ConflictError("dup")), ErrTypeConflict, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsType(tt.err, tt.errType))
		})
	}
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetType(nil))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, ErrTypeMissingValue, GetType(fmt.Errorf("wrap: %w", MissingValueError("value"))))
}

func TestWithContextAndCode(t *testing.T) {
	err := ConflictError("conversation already recorded").
		WithContext("user_id", "u-1").
		WithCode("CONV_SET")

	require.NotNil(t, err.Context)
	assert.Equal(t, "u-1", err.Context["user_id"])
	assert.Equal(t, "CONV_SET", err.Code)
}
