package core

import "testing"

func TestValidateExpiresIn(t *testing.T) {
	cfg := RefresherConfig{
		MinExpiresInSeconds:   300,
		MaxExpiresInSeconds:   7200,
		DefaultExpiresSeconds: 3600,
	}

	cases := []struct {
		input       int64
		wantVerdict ExpiresInVerdict
		wantSeconds int64
	}{
		{0, ExpiresInInvalid, 0},
		{-5, ExpiresInInvalid, 0},
		{120, ExpiresInValid, 120},
		{3600, ExpiresInValid, 3600},
		{7200, ExpiresInValid, 7200},
		{10000, ExpiresInUseDefault, 3600},
	}
	for _, tc := range cases {
		verdict, seconds := ValidateExpiresIn(tc.input, cfg)
		if verdict != tc.wantVerdict || seconds != tc.wantSeconds {
			t.Fatalf("ValidateExpiresIn(%d) = (%s, %d), want (%s, %d)",
				tc.input, verdict, seconds, tc.wantVerdict, tc.wantSeconds)
		}
	}
}
