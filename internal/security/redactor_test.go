package security

import (
	"testing"
)

func TestRedactorPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "openai key",
			input: "key is sk-abcdefghijklmnopqrstuvwxyz",
			want:  "key is " + RedactPlaceholder,
		},
		{
			name:  "openai project key",
			input: "using sk-proj-abcdefghijklmnop1234 now",
			want:  "using " + RedactPlaceholder + " now",
		},
		{
			name:  "bearer token",
			input: `header was "Bearer abcdef0123456789abcd"`,
			want:  `header was "` + RedactPlaceholder + `"`,
		},
		{
			name:  "short sk prefix left alone",
			input: "sk-short",
			want:  "sk-short",
		},
		{
			name:  "plain text untouched",
			input: "is the Vecta 46 compatible with a Solitaire X",
			want:  "is the Vecta 46 compatible with a Solitaire X",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	r := NewRedactor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Redact(tt.input); got != tt.want {
				t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactorLiterals(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("hunter2secret")

	got := r.Redact("the token hunter2secret leaked twice: hunter2secret")
	want := "the token " + RedactPlaceholder + " leaked twice: " + RedactPlaceholder
	if got != want {
		t.Errorf("Redact = %q, want %q", got, want)
	}
}

func TestRedactorIgnoresShortLiterals(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("")
	r.AddLiteral("abc")

	if got := r.Redact("abc is a common substring"); got != "abc is a common substring" {
		t.Errorf("short literal was applied: %q", got)
	}
}

func TestRedactorConcurrent(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.AddLiteral("concurrent-secret-value")
		}
	}()
	for i := 0; i < 100; i++ {
		r.Redact("some text with sk-abcdefghijklmnopqrstuvwxyz inside")
	}
	<-done
}
