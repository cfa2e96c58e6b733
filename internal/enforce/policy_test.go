package enforce

import "testing"

func TestShouldBlockDenyByDefault(t *testing.T) {
	p := NewPolicy("dev.blockd.app", nil, nil)
	cases := []struct {
		pkg  string
		want bool
	}{
		{"com.thirdparty.game", true},
		{"com.instagram.android", true},
		{"com.android.settings", false},
		{"com.android.phone", false},
		{"com.google.android.dialer", false},
		{"com.android.systemui", false},
		{"android.ext.services", false},
		{"com.android.inputmethod.latin", false},
		{"com.android.providers.contacts", false},
		{"dev.blockd.app", false},
		{"", false},
		{"com.androidish.fake", true}, // prefix match is literal, not fuzzy
	}
	for _, c := range cases {
		if got := p.ShouldBlock(c.pkg); got != c.want {
			t.Fatalf("ShouldBlock(%q) = %v, want %v", c.pkg, got, c.want)
		}
	}
}

func TestShouldBlockConfiguredExceptions(t *testing.T) {
	p := NewPolicy("dev.blockd.app",
		[]string{"com.spotify.music", "  ", ""},
		[]string{"org.fdroid."},
	)
	if p.ShouldBlock("com.spotify.music") {
		t.Fatalf("configured app exception must pass")
	}
	if p.ShouldBlock("org.fdroid.fdroid") {
		t.Fatalf("configured prefix exception must pass")
	}
	if !p.ShouldBlock("com.spotify.music.wear") {
		t.Fatalf("app exceptions are exact, not prefixes")
	}
}
