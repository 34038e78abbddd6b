//go:build linux

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// newWakeFd creates the loop's eventfd, grounded on
// original_source/src/net/EventLoop.cc's createEventfd.
func newWakeFd() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, WrapError("eventfd", err)
	}
	return fd, nil
}

// wakeFdWrite writes one 8-byte counter bump, per EventLoop::wakeup.
func wakeFdWrite(fd int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	n, err := unix.Write(fd, buf[:])
	if err != nil {
		return WrapError("eventfd write", err)
	}
	if n != 8 {
		logger().Err().Int("n", n).Log("eventfd wakeup wrote short count")
	}
	return nil
}

// wakeFdDrain consumes the pending counter value, per
// EventLoop::handleWakeupRead.
func wakeFdDrain(fd int) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		logger().Err().Err(err).Log("eventfd drain failed")
		return
	}
	if n != 8 && err == nil {
		logger().Err().Int("n", n).Log("eventfd wakeup read short count")
	}
}

// closeWakeFd releases the loop's eventfd.
func closeWakeFd(fd int) error {
	return unix.Close(fd)
}
