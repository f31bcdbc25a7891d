package event

import (
	"github.com/google/wire"
)

// ProviderSet 事件总线Provider集合
var ProviderSet = wire.NewSet(
	NewBus,
)
