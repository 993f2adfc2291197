package feed

// namespace は要素の名前空間の分類。
// URIで宣言されたものに加え、宣言なしで使われがちなプレフィックスもそのまま受け付ける。
type namespace int

const (
	nsUnknown namespace = iota
	nsCore              // RSSの無名前空間、RSS 1.0/0.9、Atom本体
	nsContent
	nsDC
	nsDCTerms
	nsMedia
	nsITunes
	nsAtom
	nsSource
	nsRDF
)

var namespaceURIs = map[string]namespace{
	"http://purl.org/rss/1.0/modules/content/":    nsContent,
	"http://purl.org/dc/elements/1.1/":            nsDC,
	"http://purl.org/dc/terms/":                   nsDCTerms,
	"http://search.yahoo.com/mrss/":               nsMedia,
	"http://search.yahoo.com/mrss":                nsMedia,
	"http://www.itunes.com/dtds/podcast-1.0.dtd":  nsITunes,
	"http://www.w3.org/2005/Atom":                 nsAtom,
	"http://purl.org/atom/ns#":                    nsAtom,
	"http://source.scripting.com/":                nsSource,
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#": nsRDF,
	"content":                                     nsContent,
	"dc":                                          nsDC,
	"dcterms":                                     nsDCTerms,
	"media":                                       nsMedia,
	"itunes":                                      nsITunes,
	"atom":                                        nsAtom,
	"source":                                      nsSource,
	"rdf":                                         nsRDF,
}

// rssCoreURIs はRSS本体として扱う名前空間。
var rssCoreURIs = map[string]bool{
	"":                                            true,
	"http://purl.org/rss/1.0/":                    true,
	"http://my.netscape.com/rdf/simple/0.9/":      true,
	"http://channel.netscape.com/rdf/simple/0.9/": true,
	"http://backend.userland.com/rss2":            true,
	"http://blogs.law.harvard.edu/tech/rss":       true,
}

// atomCoreURIs はAtom本体として扱う名前空間。
var atomCoreURIs = map[string]bool{
	"":                            true,
	"http://www.w3.org/2005/Atom": true,
	"http://purl.org/atom/ns#":    true,
}

func rssNamespace(space string) namespace {
	if rssCoreURIs[space] {
		return nsCore
	}
	return namespaceURIs[space]
}

func atomNamespace(space string) namespace {
	if atomCoreURIs[space] {
		return nsCore
	}
	return namespaceURIs[space]
}
