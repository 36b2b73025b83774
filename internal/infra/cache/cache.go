// Package cache 提供单次运行内的查询记忆化：同一标题/同一 id 在一次批处理中只查一次。
//
// Memo 只存在于内存，随 Runner 一起创建和丢弃，不做跨运行持久化。
package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Memo 是按 key 记忆成功结果的并发安全表。
//
// 约束：
// - 只缓存成功结果；失败不缓存，下一次调用会重新尝试
// - 同一 key 的并发调用合并为一次（singleflight）
type Memo[V any] struct {
	mu sync.RWMutex
	m  map[string]V
	g  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

func NewMemo[V any]() *Memo[V] {
	return &Memo[V]{m: map[string]V{}}
}

// Key 把若干片段拼成规范化的 key（小写、去首尾空白）。
func Key(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(out, "\x1f")
}

// Get 返回已缓存的值。
func (c *Memo[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

// Do 返回 key 对应的值；未命中时调用 fn 并在成功后记住结果。
//
// ctx 取消时立即返回 ctx.Err()，不等待正在进行的 fn。
func (c *Memo[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	ch := c.g.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.m[key] = v
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case r := <-ch:
		v, _ := r.Val.(V)
		return v, r.Err
	}
}

// Len 返回已缓存的条目数。
func (c *Memo[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Stats 返回命中与未命中次数。
func (c *Memo[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
