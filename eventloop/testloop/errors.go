package testloop

import "github.com/nabbar/opcua-core/status"

var errUnknownCallback = status.NotFound("no callback registered for this id")
