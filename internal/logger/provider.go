package logger

import (
	"github.com/google/wire"
)

// ProviderSet 日志Provider集合
var ProviderSet = wire.NewSet(
	New,
)
