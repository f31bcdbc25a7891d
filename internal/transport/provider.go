package transport

import (
	"github.com/google/wire"
)

// ProviderSet 传输Provider集合
var ProviderSet = wire.NewSet(
	NewFactory,
)
