package companycontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestCompanyIDFromContext(t *testing.T) {
	_, ok := CompanyIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithCompanyID(context.Background(), snowflake.ID(42))
	id, ok := CompanyIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	ctx = context.WithValue(context.Background(), CompanyContextKey{}, "77")
	id, ok = CompanyIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(77), id)

	_, ok = CompanyIDFromContext(WithCompanyID(context.Background(), 0))
	assert.False(t, ok)
}
