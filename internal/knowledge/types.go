package knowledge

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Metadata keys stored on news documents.
const (
	MetaTicker         = "ticker"
	MetaType           = "type"
	MetaTitle          = "title"
	MetaURL            = "url"
	MetaPublishedDate  = "published_date"
	MetaSource         = "source"
	MetaContentPreview = "content_preview"
	MetaFullContent    = "full_content"
)

// DocTypeNewsArticle is the document type for ingested news articles.
const DocTypeNewsArticle = "news_article"

// Document is a unit of knowledge with its metadata.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Result is a search hit with its similarity score in [0, 1].
type Result struct {
	Document
	Similarity float64
}

// NewsDocumentID derives a stable document ID from the ticker and article URL
// so the same article is never ingested twice. IDs look like
// "AAPL_news_9b2d7a1c03f4".
func NewsDocumentID(ticker, articleURL string) string {
	sum := md5.Sum([]byte(articleURL))
	return fmt.Sprintf("%s_news_%s", ticker, hex.EncodeToString(sum[:])[:12])
}
