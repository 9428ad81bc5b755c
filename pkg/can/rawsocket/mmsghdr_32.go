//go:build 386 || arm || mips || mipsle || ppc

package rawsocket

import "golang.org/x/sys/unix"

// mmsghdr is a Go representation of the C struct mmsghdr (absent from
// golang.org/x/sys/unix): 28-byte Hdr + 4-byte Len, no padding needed to
// reach 32-bit alignment.
type mmsghdr struct {
	Hdr unix.Msghdr
	Len uint32
}
