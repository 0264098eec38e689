package spec

import (
	"github.com/joomcode/errorx"
)

var (
	TopologyErrors = errorx.NewNamespace("topology")

	DecodeError = TopologyErrors.NewType("decode")
)
