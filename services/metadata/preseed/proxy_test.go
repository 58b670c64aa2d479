package preseed

import "testing"

func TestResolveProxy(t *testing.T) {
	rack := RackController{Host: "rack01.example", URL: "http://rack01.example:5240"}

	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "proxying disabled",
			snap: Snapshot{ProxyEnabled: false, ProxyURL: "http://proxy.example/"},
			want: "",
		},
		{
			name: "explicit proxy wins",
			snap: Snapshot{ProxyEnabled: true, ProxyURL: "http://proxy.example/"},
			want: "http://proxy.example/",
		},
		{
			name: "blank proxy falls back to the rack controller",
			snap: Snapshot{ProxyEnabled: true, ProxyURL: "   "},
			want: "http://rack01.example:8000/",
		},
		{
			name: "empty proxy falls back to the rack controller",
			snap: Snapshot{ProxyEnabled: true},
			want: "http://rack01.example:8000/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveProxy(tt.snap, rack); got != tt.want {
				t.Fatalf("ResolveProxy() = %q, want %q", got, tt.want)
			}
		})
	}
}
