package service

import (
	"context"
	"sync"
)

// flight 一次活跃生成
type flight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// flightTable 按对话维度的单飞表
// 保证同一对话任意时刻至多一个活跃生成：新请求先取消旧的并等待其完全退出
type flightTable struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func newFlightTable() *flightTable {
	return &flightTable{flights: make(map[string]*flight)}
}

// begin 登记新的生成；已有同对话生成时先取消并等它退出
// 返回的 end 必须在生成结束时调用（通常 defer）
func (t *flightTable) begin(ctx context.Context, conversationID string) (context.Context, func()) {
	for {
		t.mu.Lock()
		prev, ok := t.flights[conversationID]
		if !ok {
			break
		}
		// 取消后在锁外等待，避免旧流的 end 拿不到锁
		t.mu.Unlock()
		prev.cancel()
		<-prev.done
	}

	fctx, cancel := context.WithCancel(ctx)
	f := &flight{cancel: cancel, done: make(chan struct{})}
	t.flights[conversationID] = f
	t.mu.Unlock()

	var once sync.Once
	end := func() {
		once.Do(func() {
			t.mu.Lock()
			if t.flights[conversationID] == f {
				delete(t.flights, conversationID)
			}
			t.mu.Unlock()
			cancel()
			close(f.done)
		})
	}
	return fctx, end
}
