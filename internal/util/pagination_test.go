package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		page, size    int
		offset, limit int
	}{
		{page: 1, size: 10, offset: 0, limit: 10},
		{page: 3, size: 10, offset: 20, limit: 10},
		{page: 0, size: 0, offset: 0, limit: DefaultPageSize},
		{page: 2, size: 500, offset: MaxPageSize, limit: MaxPageSize},
	}

	for _, tt := range tests {
		offset, limit := Calculate(tt.page, tt.size)
		assert.Equal(t, tt.offset, offset)
		assert.Equal(t, tt.limit, limit)
	}
}
