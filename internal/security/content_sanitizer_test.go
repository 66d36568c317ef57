package security

import (
	"strings"
	"testing"
)

// TestSanitize_StripsAllMarkup は全てのタグが除去されることを検証する。
func TestSanitize_StripsAllMarkup(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantAbsent   []string
		wantContains []string
	}{
		{
			name:         "scriptタグが除去される",
			input:        `Organic Milk<script>alert('xss')</script>`,
			wantAbsent:   []string{"<script", "</script>", "alert"},
			wantContains: []string{"Organic Milk"},
		},
		{
			name:         "整形タグもテキストのみ残す",
			input:        "<strong>Whole Wheat</strong> Bread",
			wantAbsent:   []string{"<strong", "</strong>"},
			wantContains: []string{"Whole Wheat", "Bread"},
		},
		{
			name:         "imgタグが除去される",
			input:        `Cereal <img src="https://evil.com/t.png" onerror="alert(1)">`,
			wantAbsent:   []string{"<img", "onerror", "evil.com"},
			wantContains: []string{"Cereal"},
		},
		{
			name:         "iframeタグが除去される",
			input:        `Juice<iframe src="https://evil.com"></iframe>`,
			wantAbsent:   []string{"<iframe", "evil.com"},
			wantContains: []string{"Juice"},
		},
		{
			name:         "aタグはテキストのみ残す",
			input:        `<a href="https://example.com">Pasta Sauce</a>`,
			wantAbsent:   []string{"<a", "href"},
			wantContains: []string{"Pasta Sauce"},
		},
		{
			name:         "styleタグが除去される",
			input:        `<style>body{display:none}</style>Eggs`,
			wantAbsent:   []string{"<style", "display:none"},
			wantContains: []string{"Eggs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_PlainTextPassthrough はタグを含まない入力が変化しないことを検証する。
func TestSanitize_PlainTextPassthrough(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"通常の商品名", "Organic Whole Milk 1 Gallon", "Organic Whole Milk 1 Gallon"},
		{"空文字列", "", ""},
		{"前後の空白はトリムされる", "  Bananas  ", "Bananas"},
		{"記号を含む商品名", "Ben & Jerry's Ice Cream", "Ben &amp; Jerry&#39;s Ice Cream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対する再適用で結果が変わらないことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	inputs := []string{
		"Organic Milk",
		`Cereal<script>alert(1)</script>`,
		"<em>Fresh</em> Strawberries",
	}
	for _, input := range inputs {
		once := sanitizer.Sanitize(input)
		twice := sanitizer.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize が冪等でない: 1回目 %q, 2回目 %q", once, twice)
		}
	}
}
