package menu

import "testing"

func TestStyleTokensDefaults(t *testing.T) {
	tokens := StyleTokens(Theme{})
	if tokens["--ms-color-primary"] != defaultPrimary {
		t.Fatalf("primary default = %q", tokens["--ms-color-primary"])
	}
	if tokens["--ms-font-family"] != defaultFont {
		t.Fatalf("font default = %q", tokens["--ms-font-family"])
	}
}

func TestStyleTokensValidColorsPassThrough(t *testing.T) {
	tokens := StyleTokens(Theme{PrimaryColor: "#A1B2C3", BackgroundColor: "#fff"})
	if tokens["--ms-color-primary"] != "#a1b2c3" {
		t.Fatalf("primary = %q", tokens["--ms-color-primary"])
	}
	if tokens["--ms-color-background"] != "#fff" {
		t.Fatalf("background = %q", tokens["--ms-color-background"])
	}
}

func TestStyleTokensRejectsInjection(t *testing.T) {
	tokens := StyleTokens(Theme{
		PrimaryColor: "#fff; background:url(javascript:1)",
		FontFamily:   "serif\"><script>",
	})
	if tokens["--ms-color-primary"] != defaultPrimary {
		t.Fatalf("injected color must fall back, got %q", tokens["--ms-color-primary"])
	}
	if tokens["--ms-font-family"] != defaultFont {
		t.Fatalf("injected font must fall back, got %q", tokens["--ms-font-family"])
	}
}
