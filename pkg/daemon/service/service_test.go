package service

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUnitContents(t *testing.T) {
	got := UnitContents("/usr/local/bin/gatewatchd", "")

	if !strings.Contains(got, "ExecStart=/usr/local/bin/gatewatchd\n") {
		t.Error("unit file missing ExecStart with binary path")
	}
	if !strings.Contains(got, "Type=notify") {
		t.Error("unit file missing Type=notify")
	}
	if !strings.Contains(got, "Restart=on-failure") {
		t.Error("unit file missing Restart=on-failure")
	}
	if !strings.Contains(got, "[Install]") {
		t.Error("unit file missing [Install] section")
	}
}

func TestUnitContentsWithConfig(t *testing.T) {
	got := UnitContents("/usr/local/bin/gatewatchd", "/etc/gatewatch.yaml")
	if !strings.Contains(got, "ExecStart=/usr/local/bin/gatewatchd --config /etc/gatewatch.yaml") {
		t.Errorf("unit file missing --config: %s", got)
	}
}

func TestUnitPath(t *testing.T) {
	path, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath() error: %v", err)
	}
	if !strings.HasSuffix(path, "systemd/user/gatewatchd.service") {
		t.Errorf("UnitPath() = %q, want suffix systemd/user/gatewatchd.service", path)
	}
}

func TestStatusNoSocket(t *testing.T) {
	got := Status(filepath.Join(t.TempDir(), "missing.sock"))
	if !strings.Contains(got, "socket: inactive") {
		t.Errorf("Status() should report inactive socket, got: %s", got)
	}
}

func TestStatusPlainFileIsNotSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.sock")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Status(path); !strings.Contains(got, "socket: inactive") {
		t.Errorf("Status() should ignore regular files, got: %s", got)
	}
}

func TestStatusWithSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	got := Status(path)
	if !strings.Contains(got, "socket: active") {
		t.Errorf("Status() should report active socket, got: %s", got)
	}
}
