package gemini

import "testing"

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "json fence",
			in:   "Here is the profile:\n```json\n{\"a\": 1}\n```\nDone.",
			want: `{"a": 1}`,
		},
		{
			name: "bare fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "embedded object",
			in:   "The result is {\"a\": 1} as requested.",
			want: `{"a": 1}`,
		},
		{
			name: "raw json",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "no json at all",
			in:   "plain prose answer",
			want: "plain prose answer",
		},
		{
			name: "empty",
			in:   "   ",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.in); got != tc.want {
				t.Fatalf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestStripQuotes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`"a quiet harbour"`, "a quiet harbour"},
		{`'a quiet harbour'`, "a quiet harbour"},
		{`a quiet harbour`, "a quiet harbour"},
		{`  "padded"  `, "padded"},
		{`"mismatched'`, `"mismatched'`},
		{`""`, ""},
	}
	for _, tc := range cases {
		if got := StripQuotes(tc.in); got != tc.want {
			t.Errorf("StripQuotes(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
