package cumulus

import "runtime"

func osVersion() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
