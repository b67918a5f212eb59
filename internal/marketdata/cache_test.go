package marketdata

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, time.Hour)

	mock.ExpectGet("autotrader:bars:BTC-USD:test.csv").RedisNil()

	_, ok := cache.Get(context.Background(), "BTC-USD:test.csv")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, time.Hour)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSeries("BTC-USD", []Bar{barAt(base, 100), barAt(base.Add(time.Minute), 101)})
	require.NoError(t, err)

	payload, err := json.Marshal(s)
	require.NoError(t, err)

	mock.ExpectSet("autotrader:bars:k", payload, time.Hour).SetVal("OK")
	require.NoError(t, cache.Put(context.Background(), "k", s))

	mock.ExpectGet("autotrader:bars:k").SetVal(string(payload))
	got, ok := cache.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, s.Symbol, got.Symbol)
	require.Equal(t, s.Len(), got.Len())
	assert.True(t, s.Bars[0].Timestamp.Equal(got.Bars[0].Timestamp))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheCorruptEntryEvicted(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, time.Hour)

	mock.ExpectGet("autotrader:bars:bad").SetVal("{not json")
	mock.ExpectDel("autotrader:bars:bad").SetVal(1)

	_, ok := cache.Get(context.Background(), "bad")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
