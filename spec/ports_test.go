package spec_test

import (
	"testing"

	"github.com/matgreaves/gantry/spec"
)

func TestParsePortMapping(t *testing.T) {
	tests := []struct {
		in      string
		want    spec.PortMapping
		wantErr bool
	}{
		{in: "9616", want: spec.PortMapping{ContainerPort: 9616, Protocol: "tcp"}},
		{in: "9916:9616", want: spec.PortMapping{HostPort: 9916, ContainerPort: 9616, Protocol: "tcp"}},
		{in: "127.0.0.1:8080:80", want: spec.PortMapping{HostIP: "127.0.0.1", HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}},
		{in: "53:53/udp", want: spec.PortMapping{HostPort: 53, ContainerPort: 53, Protocol: "udp"}},
		{in: "8080:80/tcp", want: spec.PortMapping{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}},
		{in: "", wantErr: true},
		{in: "abc:80", wantErr: true},
		{in: "80/sctp", wantErr: true},
		{in: "999999:80", wantErr: true},
		{in: "1.2.3:80:80", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
		{in: "8080:0", wantErr: true},
	}

	for _, tt := range tests {
		got, err := spec.ParsePortMapping(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePortMapping(%q): expected error, got %+v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePortMapping(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePortMapping(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseVolumeMount(t *testing.T) {
	tests := []struct {
		in      string
		want    spec.VolumeMount
		bind    bool
		wantErr bool
	}{
		{in: "/data", want: spec.VolumeMount{Target: "/data"}},
		{in: "chain-config:/config", want: spec.VolumeMount{Source: "chain-config", Target: "/config"}},
		{
			in:   "./dashboard/prometheus:/etc/prometheus:ro",
			want: spec.VolumeMount{Source: "./dashboard/prometheus", Target: "/etc/prometheus", ReadOnly: true},
			bind: true,
		},
		{in: "/host/path:/container/path:rw", want: spec.VolumeMount{Source: "/host/path", Target: "/container/path"}, bind: true},
		{in: "relative-target", wantErr: true},
		{in: "src:relative", wantErr: true},
		{in: "a:/b:rx", wantErr: true},
		{in: "a:/b:ro:extra", wantErr: true},
		{in: ":/b", wantErr: true},
	}

	for _, tt := range tests {
		got, err := spec.ParseVolumeMount(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseVolumeMount(%q): expected error, got %+v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVolumeMount(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVolumeMount(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.Bind() != tt.bind {
			t.Errorf("ParseVolumeMount(%q).Bind() = %v, want %v", tt.in, got.Bind(), tt.bind)
		}
	}
}

func TestPortMappingString(t *testing.T) {
	tests := []struct {
		pm   spec.PortMapping
		want string
	}{
		{spec.PortMapping{ContainerPort: 9616, Protocol: "tcp"}, "9616"},
		{spec.PortMapping{HostPort: 9916, ContainerPort: 9616, Protocol: "tcp"}, "9916:9616"},
		{spec.PortMapping{HostIP: "127.0.0.1", HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}, "127.0.0.1:8080:80"},
		{spec.PortMapping{HostPort: 53, ContainerPort: 53, Protocol: "udp"}, "53:53/udp"},
	}
	for _, tt := range tests {
		if got := tt.pm.String(); got != tt.want {
			t.Errorf("String(%+v) = %q, want %q", tt.pm, got, tt.want)
		}
	}
}
