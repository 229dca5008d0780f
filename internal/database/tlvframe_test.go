package database

import "testing"

func TestFrameBlobRoundTrip(t *testing.T) {
	payload := []byte("some opaque monitor state")

	framed, err := frameBlob(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := unframeBlob(framed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestFrameBlobRoundTripEmptyPayload(t *testing.T) {
	framed, err := frameBlob(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := unframeBlob(framed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bytes, want 0", len(got))
	}
}

func TestUnframeBlobRejectsGarbage(t *testing.T) {
	if _, err := unframeBlob([]byte("not a tlv stream")); err == nil {
		t.Error("expected an error decoding a non-tlv blob")
	}
}

func TestUnframeBlobRejectsWrongSchemaVersion(t *testing.T) {
	framed, err := frameBlob([]byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Flip the schema version byte. The TLV stream is
	// [type=0][len=1][version][type=1][len][payload...]; the version
	// byte sits at offset 2.
	corrupted := append([]byte(nil), framed...)
	corrupted[2] = currentSchemaVersion + 1

	if _, err := unframeBlob(corrupted); err == nil {
		t.Error("expected an error decoding a blob with an unsupported schema version")
	}
}
