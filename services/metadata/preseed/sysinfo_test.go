package preseed

import (
	"reflect"
	"testing"
)

func TestNewSystemInfo(t *testing.T) {
	snap := Snapshot{
		MainArchiveURL:  "http://archive.example/ubuntu",
		PortsArchiveURL: "http://ports.example/ubuntu-ports",
	}

	info := NewSystemInfo(snap)
	if len(info.PackageMirrors) != 2 {
		t.Fatalf("got %d mirror entries, want 2", len(info.PackageMirrors))
	}

	intel := info.PackageMirrors[0]
	if !reflect.DeepEqual(intel.Arches, []string{"i386", "amd64"}) {
		t.Fatalf("first entry arches = %v", intel.Arches)
	}
	if !reflect.DeepEqual(intel.Search.Primary, []string{snap.MainArchiveURL}) ||
		!reflect.DeepEqual(intel.Search.Security, []string{snap.MainArchiveURL}) {
		t.Fatalf("first entry search = %+v", intel.Search)
	}
	if intel.Failsafe.Primary != "http://archive.ubuntu.com/ubuntu" ||
		intel.Failsafe.Security != "http://security.ubuntu.com/ubuntu" {
		t.Fatalf("first entry failsafe = %+v", intel.Failsafe)
	}

	other := info.PackageMirrors[1]
	if !reflect.DeepEqual(other.Arches, []string{"default"}) {
		t.Fatalf("second entry arches = %v", other.Arches)
	}
	if !reflect.DeepEqual(other.Search.Primary, []string{snap.PortsArchiveURL}) ||
		!reflect.DeepEqual(other.Search.Security, []string{snap.PortsArchiveURL}) {
		t.Fatalf("second entry search = %+v", other.Search)
	}
	if other.Failsafe.Primary != "http://ports.ubuntu.com/ubuntu-ports" ||
		other.Failsafe.Security != "http://ports.ubuntu.com/ubuntu-ports" {
		t.Fatalf("second entry failsafe = %+v", other.Failsafe)
	}
}
