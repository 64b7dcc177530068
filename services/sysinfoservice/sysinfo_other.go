//go:build !unix

package sysinfoservice

import "runtime"

func deviceModel() string {
	return runtime.GOARCH
}

func operatingSystem() string {
	return runtime.GOOS
}
