package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hitoshi/feedkit/internal/feed"
	"github.com/hitoshi/feedkit/internal/htmlparse"
	"github.com/hitoshi/feedkit/internal/model"
	"github.com/hitoshi/feedkit/internal/opml"
)

const parseUsage = "usage: feedkit parse <feed|opml|html> <file> [url]"

// htmlReport は parse html の出力。
type htmlReport struct {
	Metadata *model.HTMLMetadata
	Links    []model.HTMLLink
	Feeds    []htmlparse.FeedSpecifier
}

// runParse はファイルを読み込み、指定種別のパーサーで解析した結果をJSONで w に書く。
// url はフィードURL・OPMLのURL・HTMLのベースURLとして使う。
func runParse(w io.Writer, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%s", parseUsage)
	}
	kind, path := args[0], args[1]
	var docURL string
	if len(args) > 2 {
		docURL = args[2]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var result any
	switch kind {
	case "feed":
		result, err = feed.Parse(data, docURL)
	case "opml":
		var doc *model.OPMLDocument
		doc, err = opml.Parse(data, docURL)
		if err == nil {
			result = opml.Feeds(doc)
		}
	case "html":
		meta := htmlparse.ParseMetadata(data, docURL)
		links := htmlparse.ParseLinks(data, docURL)
		result = htmlReport{Metadata: meta, Links: links, Feeds: htmlparse.FeedSpecifiers(meta, links)}
	default:
		return fmt.Errorf("unknown document kind %q: %s", kind, parseUsage)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
