package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"validation", Validation("bad input"), KindValidation},
		{"conflict", Conflict("already exists"), KindConflict},
		{"forbidden", Forbidden("no"), KindForbidden},
		{"not found", NotFound("missing"), KindNotFound},
		{"rate limited", RateLimited("slow down"), KindRateLimited},
		{"quota exceeded", QuotaExceeded("too many"), KindQuotaExceeded},
		{"capacity exceeded", CapacityExceeded("full"), KindCapacityExceeded},
		{"invalid state", InvalidState("wrong state"), KindInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.kind))
			// 不应该匹配其他分类
			for _, other := range tests {
				if other.kind != tt.kind {
					assert.False(t, errors.Is(tt.err, other.kind))
				}
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Conflict("connection already exists")
	assert.Equal(t, "connection already exists", err.Error())
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Unavailable(cause)

	assert.True(t, errors.Is(err, KindUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsBusiness(t *testing.T) {
	assert.True(t, IsBusiness(Validation("x")))
	assert.True(t, IsBusiness(RateLimited("x")))
	assert.False(t, IsBusiness(Unavailable(errors.New("down"))))
	assert.False(t, IsBusiness(errors.New("plain error")))
	assert.False(t, IsBusiness(nil))
}

func TestWrappedMatching(t *testing.T) {
	// 分类匹配要能穿透 fmt.Errorf 包装
	err := fmt.Errorf("handling request: %w", NotFound("user not found"))
	assert.True(t, errors.Is(err, KindNotFound))
}
