// Package activation picks up listening sockets passed by systemd.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// firstFD is the first inherited descriptor (0=stdin, 1=stdout, 2=stderr)
const firstFD = 3

// Listen returns the first socket passed by systemd socket activation, or a
// new TCP listener on addr when the process was not socket-activated.
func Listen(addr string) (net.Listener, bool, error) {
	n, err := activatedFDs(os.LookupEnv, os.Getpid())
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, false, fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return ln, false, nil
	}

	ln, err := fileListener(firstFD)
	if err != nil {
		return nil, false, err
	}

	// Child processes must not inherit the activation
	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return ln, true, nil
}

// activatedFDs returns how many sockets systemd passed to process pid
func activatedFDs(lookup func(string) (string, bool), pid int) (int, error) {
	pidStr, ok := lookup("LISTEN_PID")
	if !ok || pidStr == "" {
		return 0, nil
	}
	listenPID, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if listenPID != pid {
		return 0, nil
	}

	fdsStr, ok := lookup("LISTEN_FDS")
	if !ok || fdsStr == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(fdsStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func fileListener(fd int) (net.Listener, error) {
	file := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", fd-firstFD))
	if file == nil {
		return nil, fmt.Errorf("failed to create file for fd %d", fd)
	}
	defer func() {
		_ = file.Close()
	}() // the listener holds its own dup

	ln, err := net.FileListener(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
	}
	return ln, nil
}
