package server

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// DropPrivileges chroots into dir (if non-empty) and then switches
// the process to username's uid/gid (if non-empty), in that order,
// matching nsd.c's startup sequence: bind the privileged listen
// sockets first, chroot, then drop root. Call this once, after every
// listener is bound and before Run.
func DropPrivileges(dir, username string) error {
	if dir != "" {
		if err := syscall.Chroot(dir); err != nil {
			return fmt.Errorf("server: chroot %s: %w", dir, err)
		}
		if err := os.Chdir("/"); err != nil {
			return fmt.Errorf("server: chdir / after chroot: %w", err)
		}
	}
	if username == "" {
		return nil
	}
	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("server: looking up user %q: %w", username, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("server: user %q has non-numeric gid %q", username, u.Gid)
	}
	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("server: setgid %d: %w", gid, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("server: user %q has non-numeric uid %q", username, u.Uid)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("server: setuid %d: %w", uid, err)
	}
	return nil
}
