package prompt

import "testing"

func TestBuild(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		preprompt string
		want      string
	}{
		{
			name:    "no preprompt",
			message: "Bonjour",
			want:    "User: Bonjour\nAssistant:",
		},
		{
			name:      "with preprompt",
			message:   "Bonjour",
			preprompt: "X",
			want:      "X\n\nUser: Bonjour\nAssistant:",
		},
		{
			name:      "whitespace preprompt is ignored",
			message:   "Bonjour",
			preprompt: "  \n\t",
			want:      "User: Bonjour\nAssistant:",
		},
		{
			name:      "preprompt is kept verbatim",
			message:   "Quelle heure est-il ?",
			preprompt: " Tu es un assistant. ",
			want:      " Tu es un assistant. \n\nUser: Quelle heure est-il ?\nAssistant:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Build(tt.message, tt.preprompt); got != tt.want {
				t.Errorf("Build(%q, %q) = %q, want %q", tt.message, tt.preprompt, got, tt.want)
			}
		})
	}
}
