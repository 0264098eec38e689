package resolve

import (
	"github.com/joomcode/errorx"
)

var (
	ResolveErrors = errorx.NewNamespace("resolve")

	CycleError          = ResolveErrors.NewType("cycle")
	UnknownServiceError = ResolveErrors.NewType("unknown_service")
)
