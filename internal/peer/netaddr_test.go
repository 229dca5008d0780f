package peer

import "testing"

func TestParseNetAddressClearnet(t *testing.T) {
	addr, err := ParseNetAddress("127.0.0.1:9735")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.IsTor() {
		t.Error("expected a clearnet address to report IsTor() false")
	}
	if got, want := addr.String(), "127.0.0.1:9735"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseNetAddressHostname(t *testing.T) {
	addr, err := ParseNetAddress("node.example.com:9735")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.IsTor() {
		t.Error("expected a hostname address to report IsTor() false")
	}
	if got, want := addr.String(), "node.example.com:9735"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseNetAddressTor(t *testing.T) {
	addr, err := ParseNetAddress("abcdefghijklmnop.onion:9735")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !addr.IsTor() {
		t.Error("expected a .onion address to report IsTor() true")
	}
}

func TestParseNetAddressMalformed(t *testing.T) {
	cases := []string{"", "noport", "host:notaport"}
	for _, c := range cases {
		if _, err := ParseNetAddress(c); err == nil {
			t.Errorf("ParseNetAddress(%q): expected error, got nil", c)
		}
	}
}
