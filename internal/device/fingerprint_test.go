package device

import "testing"

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

func TestHash_StableAcrossHostBits(t *testing.T) {
	a := Hash(Info{UserAgent: desktopUA, IPAddress: "203.0.113.10"})
	b := Hash(Info{UserAgent: desktopUA, IPAddress: "203.0.113.200"})
	if a != b {
		t.Error("hash should be stable within one /24 network")
	}

	c := Hash(Info{UserAgent: desktopUA, IPAddress: "198.51.100.10"})
	if a == c {
		t.Error("hash should differ across networks")
	}

	d := Hash(Info{UserAgent: "other-agent", IPAddress: "203.0.113.10"})
	if a == d {
		t.Error("hash should differ across user agents")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(a))
	}
}

func TestMaskIP(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"ipv4", "203.0.113.77", "203.0.113.0/24"},
		{"ipv4 private", "192.168.1.50", "192.168.1.0/24"},
		{"ipv6", "2001:db8:1:2:3:4:5:6", "2001:db8:1:2::/64"},
		{"mapped ipv4", "::ffff:203.0.113.77", "203.0.113.0/24"},
		{"garbage", "not-an-ip", ""},
		{"empty", "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MaskIP(tc.in); got != tc.want {
				t.Errorf("MaskIP(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	testCases := []struct {
		name string
		ua   string
		want Type
	}{
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", TypeMobile},
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", TypeMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Mobile/15E148", TypeTablet},
		{"android tablet", "Mozilla/5.0 (Linux; Android 14; Tablet) Safari/537.36", TypeTablet},
		{"desktop", desktopUA, TypeDesktop},
		{"empty", "", TypeDesktop},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseType(tc.ua); got != tc.want {
				t.Errorf("ParseType = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want Location
	}{
		{"loopback", "127.0.0.1", LocationLocal},
		{"private", "10.1.2.3", LocationLocal},
		{"private cidr", "192.168.1.0/24", LocationLocal},
		{"public", "203.0.113.10", LocationExternal},
		{"public cidr", "203.0.113.0/24", LocationExternal},
		{"garbage", "nope", LocationExternal},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Locate(tc.in); got != tc.want {
				t.Errorf("Locate(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
