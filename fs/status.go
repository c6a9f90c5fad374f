package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/fioncat/dbutils/osutils"
	"k8s.io/mount-utils"
)

type Status string

const (
	StatusMounted   Status = "mounted"
	StatusUnmounted Status = "unmounted"
	StatusLost      Status = "lost"
	StatusError     Status = "error"
)

func (s Status) Color() string {
	switch s {
	case StatusMounted:
		return color.GreenString(string(s))

	case StatusUnmounted:
		return color.YellowString(string(s))

	case StatusLost, StatusError:
		return color.RedString(string(s))
	}
	return string(s)
}

// GetStatus reports whether a FUSE view is served at path. The message is
// set for StatusError.
func GetStatus(path string) (Status, string) {
	ismount, err := newMounter().IsMountPoint(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusUnmounted, ""
		}

		// A FUSE daemon that exited without unmounting leaves the path
		// returning ENOTCONN.
		syserr := errors.Unwrap(err)
		if errors.Is(syserr, syscall.ENOTCONN) {
			return StatusLost, ""
		}

		return StatusError, err.Error()
	}

	if ismount {
		return StatusMounted, ""
	}
	return StatusUnmounted, ""
}

// Prepare makes path ready to serve a view: it must be an empty directory
// and not mounted. Lost or broken mounts are cleaned up first.
func Prepare(path string) error {
	status, _ := GetStatus(path)

	switch status {
	case StatusMounted:
		return fmt.Errorf("%q is already mounted", path)

	case StatusUnmounted:
		err := osutils.EnsureDir(path)
		if err != nil {
			return fmt.Errorf("ensure mount path: %w", err)
		}

	case StatusLost, StatusError:
		// The kernel cleans the stale state on unmount.
		err := newMounter().Unmount(path)
		if err != nil {
			return fmt.Errorf("unmount %s path: %w", status, err)
		}
	}

	ents, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read mount path: %w", err)
	}
	if len(ents) > 0 {
		return fmt.Errorf("mount path %q is not empty, cannot be mounted", path)
	}
	return nil
}

// Release unmounts path if something is still mounted there.
func Release(path string) error {
	status, _ := GetStatus(path)
	if status == StatusUnmounted {
		return nil
	}
	return newMounter().Unmount(path)
}

func newMounter() mount.Interface {
	return mount.New(os.Getenv("DBUTILS_MOUNT_PATH"))
}
