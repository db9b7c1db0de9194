package sysloop

import "github.com/nabbar/opcua-core/status"

var (
	errNilCallback     = status.InvalidArgument("callback function is nil")
	errInvalidInterval = status.InvalidArgument("cyclic interval must be positive")
	errUnknownCallback = status.NotFound("no callback registered for this id")
)
