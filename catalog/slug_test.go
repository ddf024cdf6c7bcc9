package catalog

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Acme", "acme"},
		{"spaces", "Acme Outfitters", "acme-outfitters"},
		{"accents", "Céline", "celine"},
		{"punctuation", "A.P.C. Paris", "a-p-c-paris"},
		{"ampersand", "Rag & Bone", "rag-bone"},
		{"leading trailing", "  Maison Margiela  ", "maison-margiela"},
		{"repeat separators", "Comme   des---Garçons", "comme-des-garcons"},
		{"numbers", "Studio 54", "studio-54"},
		{"empty", "", ""},
		{"only symbols", "&&&", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugify_Stable(t *testing.T) {
	if Slugify("Nørrebro Supply") != Slugify("Nørrebro Supply") {
		t.Error("Slugify should be deterministic")
	}
}
