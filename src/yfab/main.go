// yfab configures poky build trees, runs bitbake, flashes images to
// removable media and deploys RAUC update bundles.
package main

import (
	"github.com/bitswalk/yfab/src/yfab/core"
)

func main() {
	core.Execute()
}
