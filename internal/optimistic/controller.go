// Package optimistic 维护一份按 key 划分的投影状态：先应用暂定值，再等待权威写入确认，失败或超时回滚到快照。
package optimistic

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrInFlight = errors.New("mutation already in flight for key")
	ErrTimeout  = errors.New("mutation not confirmed in time")
)

// Change 一次变更期间持有的前后两份快照
type Change[T any] struct {
	Before    T
	HadBefore bool
	After     T
	HasAfter  bool
	Committed bool
}

// Tentative 根据当前值给出暂定值；返回 false 表示暂定状态下该 key 不存在
type Tentative[T any] func(cur T, ok bool) (T, bool)

// Commit 执行权威写入，返回权威值
type Commit[T any] func(ctx context.Context) (T, bool, error)

type Controller[T any] struct {
	mu       sync.Mutex
	state    map[string]T
	inflight map[string]*Change[T]
	timeout  time.Duration
}

func NewController[T any](timeout time.Duration) *Controller[T] {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Controller[T]{
		state:    make(map[string]T),
		inflight: make(map[string]*Change[T]),
		timeout:  timeout,
	}
}

func (c *Controller[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}

// Load 用权威数据整体替换投影；进行中的 key 保留暂定值
func (c *Controller[T]) Load(items map[string]T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]T, len(items))
	for k, v := range items {
		if _, busy := c.inflight[k]; busy {
			continue
		}
		next[k] = v
	}
	for k := range c.inflight {
		if v, ok := c.state[k]; ok {
			next[k] = v
		}
	}
	c.state = next
}

func (c *Controller[T]) Put(key string, v T) {
	c.mu.Lock()
	c.state[key] = v
	c.mu.Unlock()
}

func (c *Controller[T]) Remove(key string) {
	c.mu.Lock()
	delete(c.state, key)
	c.mu.Unlock()
}

// Snapshot 当前投影的拷贝
func (c *Controller[T]) Snapshot() map[string]T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]T, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}

func (c *Controller[T]) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[key]
	return ok
}

// Mutate 应用暂定值并等待 commit；成功时以权威值为准，失败或超时恢复 Before
func (c *Controller[T]) Mutate(ctx context.Context, key string, tentative Tentative[T], commit Commit[T]) (*Change[T], error) {
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	ch := &Change[T]{}
	ch.Before, ch.HadBefore = c.state[key]
	ch.After, ch.HasAfter = tentative(ch.Before, ch.HadBefore)
	c.apply(key, ch.After, ch.HasAfter)
	c.inflight[key] = ch
	c.mu.Unlock()

	type result struct {
		v   T
		ok  bool
		err error
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	done := make(chan result, 1)
	go func() {
		v, ok, err := commit(cctx)
		done <- result{v, ok, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-cctx.Done():
		res.err = ErrTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			res.err = ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
	if res.err != nil {
		c.apply(key, ch.Before, ch.HadBefore)
		return ch, res.err
	}
	ch.Committed = true
	ch.After, ch.HasAfter = res.v, res.ok
	c.apply(key, res.v, res.ok)
	return ch, nil
}

func (c *Controller[T]) apply(key string, v T, ok bool) {
	if ok {
		c.state[key] = v
		return
	}
	delete(c.state, key)
}
