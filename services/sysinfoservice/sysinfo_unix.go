//go:build unix

package sysinfoservice

import (
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

func deviceModel() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return runtime.GOARCH
	}
	return unix.ByteSliceToString(uts.Machine[:])
}

func operatingSystem() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return runtime.GOOS
	}
	return strings.TrimSpace(unix.ByteSliceToString(uts.Sysname[:]) + " " + unix.ByteSliceToString(uts.Release[:]))
}
