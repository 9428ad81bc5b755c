//go:build amd64 || arm64 || mips64 || mips64le || ppc64 || ppc64le || riscv64 || s390x

package rawsocket

import "golang.org/x/sys/unix"

// mmsghdr is a Go representation of the C struct mmsghdr (absent from
// golang.org/x/sys/unix): 56-byte Hdr + 4-byte Len, 4 bytes padding to reach
// 64-bit alignment.
type mmsghdr struct {
	Hdr unix.Msghdr
	Len uint32
	pad [4]byte
}
