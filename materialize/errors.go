package materialize

import (
	"github.com/joomcode/errorx"
)

var (
	MaterializeErrors = errorx.NewNamespace("materialize")

	InterpolateError  = MaterializeErrors.NewType("interpolate")
	PortConflictError = MaterializeErrors.NewType("port_conflict")
)
