package feed

import "testing"

func TestIsFeed(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"RSS Content-Type", "application/rss+xml; charset=utf-8", "", true},
		{"Atom Content-Type", "application/atom+xml", "", true},
		{"text/xmlでRSS", "text/xml", `<rss version="2.0"><channel/></rss>`, true},
		{"application/xmlでAtom", "application/xml", `<feed xmlns="http://www.w3.org/2005/Atom"/>`, true},
		{"text/xmlでOPML", "text/xml", `<opml version="2.0"/>`, false},
		{"HTML", "text/html", `<rss/>`, false},
		{"text/xmlで空ボディ", "text/xml", "", false},
		{"Content-Typeなし", "", `<rss/>`, true},
		{"JSON Feed Content-Type", "application/feed+json", "", true},
		{"application/jsonでJSON Feed", "application/json", `{"version":"https://jsonfeed.org/version/1.1","items":[]}`, true},
		{"application/jsonで他のJSON", "application/json", `{"name":"x"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFeed(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("IsFeed(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}
