package loader

import (
	"github.com/joomcode/errorx"
)

var (
	LoaderErrors = errorx.NewNamespace("loader")

	ConfigError = LoaderErrors.NewType("config")
)
