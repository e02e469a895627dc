// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_BasicOperations(t *testing.T) {
	cache := New[string, string](time.Minute)

	cache.Set("key1", "value1")
	value, found := cache.Get("key1")
	require.True(t, found)
	assert.Equal(t, "value1", value)

	_, found = cache.Get("nonexistent")
	assert.False(t, found)

	cache.Set("key2", "value2")
	assert.Equal(t, 2, cache.Len())

	cache.Delete("key1")
	_, found = cache.Get("key1")
	assert.False(t, found)
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_TTL(t *testing.T) {
	cache := New[string, string](50 * time.Millisecond)

	cache.Set("key1", "value1")
	value, found := cache.Get("key1")
	require.True(t, found)
	assert.Equal(t, "value1", value)

	time.Sleep(80 * time.Millisecond)

	_, found = cache.Get("key1")
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_GetWithAge(t *testing.T) {
	cache := New[string, int](time.Minute)

	cache.Set("key1", 42)
	time.Sleep(20 * time.Millisecond)

	value, age, found := cache.GetWithAge("key1")
	require.True(t, found)
	assert.Equal(t, 42, value)
	assert.GreaterOrEqual(t, age, 20*time.Millisecond)

	_, age, found = cache.GetWithAge("missing")
	assert.False(t, found)
	assert.Zero(t, age)
}

func TestCache_SweepOnSet(t *testing.T) {
	cache := New[string, string](30 * time.Millisecond)

	cache.Set("stale1", "a")
	cache.Set("stale2", "b")
	time.Sleep(60 * time.Millisecond)

	// Writing sweeps the expired entries out of the map
	cache.Set("fresh", "c")
	assert.Equal(t, 1, cache.Len())

	_, found := cache.Get("fresh")
	assert.True(t, found)
}

func TestCache_OverwriteResetsExpiry(t *testing.T) {
	cache := New[string, string](60 * time.Millisecond)

	cache.Set("key", "old")
	time.Sleep(40 * time.Millisecond)
	cache.Set("key", "new")
	time.Sleep(40 * time.Millisecond)

	value, found := cache.Get("key")
	require.True(t, found)
	assert.Equal(t, "new", value)
}
