//go:build linux

package runtime

import "golang.org/x/sys/unix"

func threadID() uint64 { return uint64(unix.Gettid()) }
