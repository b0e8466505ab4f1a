package v1

import "testing"

func TestEnvelopeValidate(t *testing.T) {
	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"session list ok", Envelope{V: Version, Type: TypeSessionList}, false},
		{"error ok", Envelope{V: Version, Type: TypeError}, false},
		{"missing version", Envelope{Type: TypeSessionList}, true},
		{"wrong version", Envelope{V: "v2", Type: TypeSessionList}, true},
		{"missing type", Envelope{V: Version}, true},
		{"unknown type", Envelope{V: Version, Type: "chat"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
