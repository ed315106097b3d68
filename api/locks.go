package api

import "sync"

// strategyLocks 策略粒度的互斥锁注册表，键为 userID:strategyID
// 同一策略的并发信号串行执行: 锁从市场数据获取一直持有到订单提交完成，
// 保证余额读取和下单之间不会被并发信号插队。不同策略互不阻塞。
type strategyLocks struct {
	locks sync.Map
}

func (l *strategyLocks) acquire(key string) *sync.Mutex {
	actual, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
