package textutil

import (
	"testing"
	"unicode/utf8"
)

func assertValidUTF8(t *testing.T, s string) {
	t.Helper()
	if !utf8.ValidString(s) {
		t.Errorf("result is not valid UTF-8: %q", s)
	}
}

func TestEnsureUTF8AlreadyValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"ASCII", "Hello, World!"},
		{"Chinese", "你好世界"},
		{"Cyrillic", "Привет мир"},
		{"emoji", "Hello 👋 World 🌍"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsureUTF8(tt.in); got != tt.in {
				t.Errorf("EnsureUTF8 changed valid input: got %q, want %q", got, tt.in)
			}
		})
	}
}

func TestEnsureUTF8Windows1252(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"smart quote", []byte("Rand\x92s Opponent"), "Rand’s Opponent"},
		{"en dash", []byte("2020 \x96 2024"), "2020 – 2024"},
		{"left double quote", []byte("\x93Hello\x94"), "“Hello”"},
		{"euro sign", []byte("Price: \x80100"), "Price: €100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnsureUTF8(string(tt.in))
			if got != tt.want {
				t.Errorf("EnsureUTF8(%q) = %q, want %q", tt.in, got, tt.want)
			}
			assertValidUTF8(t, got)
		})
	}
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid unchanged", "Hello, 世界!", "Hello, 世界!"},
		{"single invalid byte", "Hello\x80World", "Hello�World"},
		{"truncated sequence", "Hello\xc3", "Hello�"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeUTF8(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeUTF8(%q) = %q, want %q", tt.in, got, tt.want)
			}
			assertValidUTF8(t, got)
		})
	}
}

func TestGetEncodingByName(t *testing.T) {
	for _, name := range []string{"windows-1252", "ISO-8859-1", "latin1", "Shift_JIS", "EUC-KR", "GBK", "Big5", "KOI8-R"} {
		if GetEncodingByName(name) == nil {
			t.Errorf("GetEncodingByName(%q) = nil", name)
		}
	}
	if GetEncodingByName("unknown-charset") != nil {
		t.Error("GetEncodingByName accepted an unknown charset")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxRunes int
		want     string
	}{
		{"short", "Hello", 10, "Hello"},
		{"exact", "Hello", 5, "Hello"},
		{"truncated", "Hello World", 8, "Hello..."},
		{"tiny cap", "Hello", 3, "Hel"},
		{"multibyte", "你好世界！", 4, "你..."},
		{"zero", "Hello", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.in, tt.maxRunes); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.maxRunes, got, tt.want)
			}
		})
	}
}
