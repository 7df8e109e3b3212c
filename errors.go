package cinevec

import (
	"fmt"

	"github.com/poiesic/cinevec/core"
)

// ErrConfigRequired indicates the application was built without usable configuration.
var ErrConfigRequired = fmt.Errorf("%w: application configuration", core.ErrConfiguration)
