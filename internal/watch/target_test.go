package watch

import (
	"testing"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantBoard string
		wantID    string
		wantSlug  string
		wantErr   bool
	}{
		{
			name:      "plain thread url",
			url:       "https://boards.4chan.org/wg/thread/123456",
			wantBoard: "wg",
			wantID:    "123456",
		},
		{
			name:      "url with slug",
			url:       "https://boards.4chan.org/wg/thread/123456/mountain-landscapes",
			wantBoard: "wg",
			wantID:    "123456",
			wantSlug:  "mountain-landscapes",
		},
		{
			name:      "fragment stripped from id",
			url:       "https://boards.4chan.org/g/thread/98765#p98770",
			wantBoard: "g",
			wantID:    "98765",
		},
		{
			name:      "fragment stripped from slug",
			url:       "https://boards.4chan.org/g/thread/98765/desktop-thread#p98770",
			wantBoard: "g",
			wantID:    "98765",
			wantSlug:  "desktop-thread",
		},
		{
			name:      "surrounding whitespace ignored",
			url:       "  https://boards.4chan.org/wg/thread/123456\n",
			wantBoard: "wg",
			wantID:    "123456",
		},
		{
			name:      "trailing slash leaves slug empty",
			url:       "https://boards.4chan.org/wg/thread/123456/",
			wantBoard: "wg",
			wantID:    "123456",
		},
		{
			name:    "too few path segments",
			url:     "https://boards.4chan.org/wg",
			wantErr: true,
		},
		{
			name:    "empty id",
			url:     "https://boards.4chan.org/wg/thread/",
			wantErr: true,
		},
		{
			name:    "empty board",
			url:     "https://boards.4chan.org//thread/123456",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			target, err := ParseTarget(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTarget(%q) expected error, got %+v", tt.url, target)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTarget(%q) error = %v", tt.url, err)
			}
			if target.Board != tt.wantBoard {
				t.Errorf("Board = %q, want %q", target.Board, tt.wantBoard)
			}
			if target.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", target.ID, tt.wantID)
			}
			if target.Slug != tt.wantSlug {
				t.Errorf("Slug = %q, want %q", target.Slug, tt.wantSlug)
			}
		})
	}
}

func TestTarget_String(t *testing.T) {
	t.Parallel()
	target, err := ParseTarget("https://boards.4chan.org/wg/thread/123456/scenery")
	if err != nil {
		t.Fatalf("ParseTarget() error = %v", err)
	}
	if got, want := target.String(), "wg/123456"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
