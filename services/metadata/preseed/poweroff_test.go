package preseed

import "testing"

func TestPowerOffFor(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		wantEnabled bool
		wantTimeout int
	}{
		{
			name:        "entering rescue mode stays up",
			status:      StatusEnteringRescueMode,
			wantEnabled: false,
		},
		{
			name:        "disk erasing gets a week",
			status:      StatusDiskErasing,
			wantEnabled: true,
			wantTimeout: 604800,
		},
		{
			name:        "commissioning gets an hour",
			status:      StatusCommissioning,
			wantEnabled: true,
			wantTimeout: 3600,
		},
		{
			name:        "any other status gets an hour",
			status:      StatusReady,
			wantEnabled: true,
			wantTimeout: 3600,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PowerOffFor(tt.status)
			if got.Enabled != tt.wantEnabled {
				t.Fatalf("Enabled = %v, want %v", got.Enabled, tt.wantEnabled)
			}
			if !tt.wantEnabled {
				return
			}
			if got.Timeout != tt.wantTimeout {
				t.Fatalf("Timeout = %d, want %d", got.Timeout, tt.wantTimeout)
			}
			if got.Condition != "test ! -e /tmp/block-poweroff" {
				t.Fatalf("Condition = %q", got.Condition)
			}
		})
	}
}
