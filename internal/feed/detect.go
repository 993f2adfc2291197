package feed

import (
	"mime"
	"strings"
)

// feedContentTypes はフィードとして扱うContent-Type。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/rdf+xml",
	"application/feed+json",
}

// xmlContentTypes はボディを見て判定するContent-Type。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
	"application/json",
	"text/plain",
	"application/octet-stream",
}

// IsFeed はContent-Typeとボディからレスポンスがフィードかどうかを判定する。
// 汎用的なContent-Typeの場合はルート要素で判定する。
func IsFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, ct := range feedContentTypes {
		if mediaType == ct {
			return true
		}
	}

	generic := mediaType == ""
	for _, ct := range xmlContentTypes {
		if mediaType == ct {
			generic = true
			break
		}
	}
	if !generic || len(body) == 0 {
		return false
	}

	_, err = Sniff(body)
	return err == nil
}
