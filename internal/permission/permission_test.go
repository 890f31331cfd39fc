package permission

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestStatic(t *testing.T) {
	st, err := Static{Granted: true}.Request(context.Background())
	if err != nil || !st.Granted {
		t.Fatalf("Static granted: %+v %v", st, err)
	}
	st, _ = Static{}.Status(context.Background())
	if st.Granted {
		t.Fatal("zero Static must deny")
	}
}

func TestDeviceGrantedForAccessibleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video0")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := NewDevice(path).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Granted {
		t.Fatal("expected access to own temp file")
	}
}

func TestDeviceMissingNodeCanAskAgain(t *testing.T) {
	d := NewDevice(filepath.Join(t.TempDir(), "missing"))
	st, err := d.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Granted || !st.CanAskAgain {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestDeviceRequestIsOneTime(t *testing.T) {
	d := NewDevice("/dev/video9")
	d.access = func(string, uint32) error { return unix.EACCES }

	st, err := d.Status(context.Background())
	if err != nil || st.Granted || !st.CanAskAgain {
		t.Fatalf("before request: %+v %v", st, err)
	}

	st, err = d.Request(context.Background())
	if err != nil || st.Granted || st.CanAskAgain {
		t.Fatalf("after request: %+v %v", st, err)
	}

	st, _ = d.Status(context.Background())
	if st.CanAskAgain {
		t.Fatal("CanAskAgain should stay false after the request")
	}
}

func TestDeviceUnexpectedError(t *testing.T) {
	d := NewDevice("/dev/video0")
	d.access = func(string, uint32) error { return unix.EIO }
	if _, err := d.Status(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
