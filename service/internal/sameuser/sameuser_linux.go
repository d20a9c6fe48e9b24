//go:build linux
// +build linux

// Package sameuser restricts connections to a server listening on the
// loopback interface to the user running it.
package sameuser

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/eclipse-che/debugd/pkg/logflags"
)

// replaced by tests
var (
	uid      = os.Getuid()
	readFile = os.ReadFile
)

type errConnectionNotFound struct {
	filename string
}

func (e *errConnectionNotFound) Error() string {
	return fmt.Sprintf("connection not found in %s", e.filename)
}

// socketOwner returns the uid owning the socket from local to remote
// listed in filename, in the format of /proc/net/tcp.
func socketOwner(filename, local, remote string) (int, error) {
	b, err := readFile(filename)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		// Fields are padded (%4d, %5u), Sscanf skips the padding.
		var (
			sl                            int
			readLocalAddr, readRemoteAddr string
			state                         int
			queue, timer                  string
			retransmit                    int
			owner                         uint
		)
		n, err := fmt.Sscanf(line, "%4d: %s %s %02X %s %s %08X %d",
			&sl, &readLocalAddr, &readRemoteAddr, &state, &queue, &timer, &retransmit, &owner)
		if n != 8 || err != nil {
			continue // header
		}
		if readLocalAddr == local && readRemoteAddr == remote {
			return int(owner), nil
		}
	}
	return 0, &errConnectionNotFound{filename}
}

func hex4(addr *net.TCPAddr) string {
	b := addr.IP.To4()
	return fmt.Sprintf("%02X%02X%02X%02X:%04X", b[3], b[2], b[1], b[0], addr.Port)
}

func hex6(addr *net.TCPAddr) string {
	a16 := addr.IP.To16()
	var s strings.Builder
	for i := 0; i < 16; i += 4 {
		fmt.Fprintf(&s, "%08X", binary.LittleEndian.Uint32(a16[i:i+4]))
	}
	fmt.Fprintf(&s, ":%04X", addr.Port)
	return s.String()
}

// clientOwner returns the uid of the client end of the connection from
// remote to local. The client socket is the one whose local address is the
// remote address seen by the server.
func clientOwner(local, remote *net.TCPAddr) (int, error) {
	if remote.IP.To4() == nil {
		return socketOwner("/proc/net/tcp6", hex6(remote), hex6(local))
	}
	owner, err := socketOwner("/proc/net/tcp", hex4(remote), hex4(local))
	if _, notFound := err.(*errConnectionNotFound); notFound {
		// IPv4 clients of a dual stack listener are listed as mapped
		// addresses.
		const mapped = "0000000000000000FFFF0000"
		if owner, err2 := socketOwner("/proc/net/tcp6", mapped+hex4(remote), mapped+hex4(local)); err2 == nil {
			return owner, nil
		}
	}
	return owner, err
}

// CanAccept reports whether a connection from remoteAddr to localAddr,
// accepted by a listener on listenAddr, may be served. Only listeners on a
// loopback address are restricted.
func CanAccept(listenAddr, localAddr, remoteAddr net.Addr, log logflags.Logger) bool {
	laddr, ok := listenAddr.(*net.TCPAddr)
	if !ok || !laddr.IP.IsLoopback() {
		return true
	}
	local, ok1 := localAddr.(*net.TCPAddr)
	remote, ok2 := remoteAddr.(*net.TCPAddr)
	if !ok1 || !ok2 {
		return true
	}

	owner, err := clientOwner(local, remote)
	if err != nil {
		log.Warnf("cannot check remote address: %v", err)
		return false
	}
	if owner != uid {
		log.Warnf("closing connection from different user (%v, uid %d): connections to localhost are only accepted from the same UNIX user", remote, owner)
		return false
	}
	return true
}
