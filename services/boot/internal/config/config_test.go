package config

import (
	"net"
	"reflect"
	"testing"
)

func TestParsePortList(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  nil,
		},
		{
			name:  "dedupe and trim",
			input: "8081, 8082,8081,,8083",
			want:  []int{8081, 8082, 8083},
		},
		{
			name:    "invalid integer",
			input:   "abc",
			wantErr: true,
		},
		{
			name:    "out of range",
			input:   "70000",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePortList(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePortList() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parsePortList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareIPv4(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "10.0.0.1", "10.0.0.1", 0},
		{"less", "10.0.0.1", "10.0.0.2", -1},
		{"greater", "10.0.1.0", "10.0.0.255", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareIPv4(net.ParseIP(tt.a), net.ParseIP(tt.b))
			if got != tt.want {
				t.Fatalf("compareIPv4(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
