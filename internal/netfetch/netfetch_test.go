package netfetch

import (
	"net"
	"testing"
)

func TestIsDenied_Loopback(t *testing.T) {
	if !isDenied(net.ParseIP("127.0.0.1")) {
		t.Fatal("expected loopback to be denied")
	}
}

func TestIsDenied_PrivateRFC1918(t *testing.T) {
	for _, addr := range []string{"10.0.0.5", "172.16.0.1", "192.168.1.1"} {
		if !isDenied(net.ParseIP(addr)) {
			t.Fatalf("expected %s to be denied", addr)
		}
	}
}

func TestIsDenied_LinkLocal(t *testing.T) {
	if !isDenied(net.ParseIP("169.254.1.1")) {
		t.Fatal("expected link-local to be denied")
	}
}

func TestIsDenied_ULA(t *testing.T) {
	if !isDenied(net.ParseIP("fc00::1")) {
		t.Fatal("expected IPv6 ULA to be denied")
	}
}

func TestIsDenied_IPv4Mapped(t *testing.T) {
	if !isDenied(net.ParseIP("::ffff:127.0.0.1")) {
		t.Fatal("expected IPv4-mapped loopback to be denied")
	}
}

func TestIsDenied_PublicAddressAllowed(t *testing.T) {
	if isDenied(net.ParseIP("93.184.216.34")) {
		t.Fatal("expected public address to be allowed")
	}
}

func TestValidateHost_RejectsLiteralPrivateIP(t *testing.T) {
	if err := validateHost("192.168.0.1"); err == nil {
		t.Fatal("expected validateHost to reject a private literal IP")
	}
}
