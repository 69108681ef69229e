package models

// PostRef identifies one forum post found by discovery.
type PostRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Source tells where inside a post a text item came from.
type Source string

const (
	SourceBody    Source = "body"
	SourceComment Source = "comment"
)

// TextItem is one raw piece of text pulled from a post.
type TextItem struct {
	PostID  string `json:"post_id"`
	Source  Source `json:"source"`
	RawText string `json:"text"`
}

// NormalizedItem is a TextItem after character filtering, tokenization and
// stop-word removal. Tokens may be empty.
type NormalizedItem struct {
	Origin TextItem
	Tokens []string
}
