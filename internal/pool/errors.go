package pool

import (
	"errors"
	"fmt"
	"time"
)

// ErrPoolClosed 连接池已销毁后的获取请求
var ErrPoolClosed = errors.New("connection pool is closed")

// AcquireTimeoutError 等待连接超过 AcquireTimeout
type AcquireTimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("acquire connection for %s timed out after %s", e.Endpoint, e.Timeout)
}
