package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/antiplagiat/textcheck/internal/config"
	"github.com/antiplagiat/textcheck/internal/models"
)

func TestBuild_TooShort(t *testing.T) {
	b := NewBuilder(Defaults())

	tests := []struct {
		name      string
		raw       string
		shortfall int
	}{
		{"empty", "", 100},
		{"whitespace only", "   \n\t  ", 100},
		{"99 chars", strings.Repeat("a", 99), 1},
		{"padded 50 chars", "    " + strings.Repeat("b", 50) + "\n\n", 50},
		// 99 cyrillic letters are 198 bytes but still too short
		{"multibyte", strings.Repeat("ж", 99), 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := b.Build(tc.raw, Options{})
			if req != nil {
				t.Fatalf("expected no request, got %+v", req)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Reason != ReasonTooShort {
				t.Fatalf("reason = %s, want %s", verr.Reason, ReasonTooShort)
			}
			if verr.Shortfall != tc.shortfall {
				t.Fatalf("shortfall = %d, want %d", verr.Shortfall, tc.shortfall)
			}
		})
	}
}

func TestBuild_TrimsWithoutTruncating(t *testing.T) {
	b := NewBuilder(Defaults())
	body := strings.Repeat("Проверка текста. ", 40)
	raw := "\n\t  " + body + "   "

	req, err := b.Build(raw, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if req.Text != strings.TrimSpace(raw) {
		t.Fatalf("text was altered beyond trimming")
	}
}

func TestBuild_ExactlyMinimum(t *testing.T) {
	b := NewBuilder(Defaults())
	raw := "  " + strings.Repeat("x", MinChars) + "  "

	req, err := b.Build(raw, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if CountChars(req.Text) != MinChars {
		t.Fatalf("expected %d chars, got %d", MinChars, CountChars(req.Text))
	}
}

func TestBuild_TooLong(t *testing.T) {
	b := NewBuilder(Defaults())
	_, err := b.Build(strings.Repeat("y", MaxChars+1), Options{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonTooLong {
		t.Fatalf("expected too_long, got %v", err)
	}
}

func TestBuild_DefaultsAndOverrides(t *testing.T) {
	b := NewBuilder(Defaults())
	raw := strings.Repeat("z", 150)

	req, err := b.Build(raw, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Mode != models.ModeFast || req.Lang != models.LangAuto || !req.ExcludeQuotes || req.ExcludeBibliography {
		t.Fatalf("unexpected defaults: %+v", req)
	}

	deep := models.ModeDeep
	en := models.LangEN
	no := false
	yes := true
	req, err = b.Build(raw, Options{Mode: &deep, Lang: &en, ExcludeQuotes: &no, ExcludeBibliography: &yes})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Mode != models.ModeDeep || req.Lang != models.LangEN || req.ExcludeQuotes || !req.ExcludeBibliography {
		t.Fatalf("overrides not applied: %+v", req)
	}
}

func TestBuild_InvalidOptions(t *testing.T) {
	b := NewBuilder(Defaults())
	raw := strings.Repeat("z", 150)

	mode := models.Mode("slow")
	_, err := b.Build(raw, Options{Mode: &mode})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Reason != ReasonInvalidMode {
		t.Fatalf("expected invalid_mode, got %v", err)
	}

	lang := models.Lang("de")
	_, err = b.Build(raw, Options{Lang: &lang})
	if !errors.As(err, &verr) || verr.Reason != ReasonInvalidLang {
		t.Fatalf("expected invalid_lang, got %v", err)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.RequestConfig{Mode: "deep", Lang: "kk", ExcludeQuotes: false, ExcludeBibliography: true})
	b := NewBuilder(s)

	req, err := b.Build(strings.Repeat("q", 120), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.Mode != models.ModeDeep || req.Lang != models.LangKK || req.ExcludeQuotes || !req.ExcludeBibliography {
		t.Fatalf("config defaults not applied: %+v", req)
	}
}

func TestCountWords(t *testing.T) {
	if n := CountWords("  one two\tthree\nfour  "); n != 4 {
		t.Fatalf("CountWords = %d, want 4", n)
	}
	if n := CountWords("   "); n != 0 {
		t.Fatalf("CountWords on blank = %d, want 0", n)
	}
}
