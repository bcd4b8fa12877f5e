package xerrors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapInheritsCode(t *testing.T) {
	err := Wrap(ErrDimMismatch, ErrInternal, "fit tree").WithContext("tree", 3)
	assert.Equal(t, ErrInvalidArg, err.Type)
	assert.Equal(t, ErrDimMismatch.Code, err.Code)
	assert.True(t, errors.Is(err, ErrDimMismatch))
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, 3, err.Context["tree"])

	// 原哨兵不被修改
	assert.Empty(t, ErrDimMismatch.Context)

	outer := fmt.Errorf("train: %w", err)
	assert.True(t, errors.Is(outer, ErrDimMismatch))
	e, ok := FromError(outer)
	require.True(t, ok)
	assert.Equal(t, "fit tree", e.Message)
}

func TestWrapPlainError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternal, "noop"))

	cause := errors.New("disk full")
	err := WrapInternal(cause, "write model")
	assert.Equal(t, ErrInternal, err.Type)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotEmpty(t, err.Stack)

	_, ok := FromError(cause)
	assert.False(t, ok)
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "DataLoss", ErrCorruptModel.Type.String())
	assert.Equal(t, "NotFound", ErrObjectNotFound.Type.String())
	assert.Equal(t, "Unknown", ErrorType(99).String())
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrNotFound, TypeOf(fmt.Errorf("load: %w", ErrObjectNotFound)))
	assert.Equal(t, ErrUnknown, TypeOf(errors.New("plain")))
	assert.Equal(t, ErrUnknown, TypeOf(nil))
}

func TestLogValue(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	err := Wrap(ErrCorruptModel, ErrDataLoss, "decode tree").WithContext("tree", 4)
	l.Error("load failed", "error", err)

	var rec struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DataLoss", rec.Error["type"])
	assert.Equal(t, float64(ErrCorruptModel.Code), rec.Error["code"])
	assert.Equal(t, "decode tree", rec.Error["message"])
	assert.Equal(t, float64(4), rec.Error["tree"])
	assert.Contains(t, rec.Error["cause"], "corrupt model")
}
