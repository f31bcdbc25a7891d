package discovery

import "errors"

// ErrServiceNotFound 操作的服务ID不在本地注册表中
var ErrServiceNotFound = errors.New("service not found")

// ErrDiscoveryClosed 服务发现组件已销毁
var ErrDiscoveryClosed = errors.New("service discovery is destroyed")
