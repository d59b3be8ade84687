package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daru-lab/jeonseguard/internal/model"
)

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("서울특별시 종로구 청운동 1-2", 24000)
	k2 := Key("서울특별시 종로구 청운동 1-2", 24000)
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "predict:"))

	assert.NotEqual(t, k1, Key("서울특별시 종로구 청운동 1-2", 25000))
	assert.NotEqual(t, k1, Key("서울특별시 종로구 청운동 1-3", 24000))
}

func TestNewDisabled(t *testing.T) {
	assert.Nil(t, New(Config{Enabled: false, Addr: "localhost:6379"}))
	assert.Nil(t, New(Config{Enabled: true, Addr: ""}))
}

func TestNilCacheIsPermanentMiss(t *testing.T) {
	var c *ResultCache
	ctx := context.Background()

	assert.Nil(t, c.Get(ctx, Key("x", 1)))
	c.Set(ctx, Key("x", 1), &model.Assessment{ID: "a", AnalyzedAt: time.Now()})
	assert.Nil(t, c.Get(ctx, Key("x", 1)))
	assert.NoError(t, c.Close())
}
