// Package forum describes the markup contract of the coolenjoy board that
// discovery and extraction scrape.
package forum

import (
	"fmt"
	"net/url"
	"strings"
)

// Selectors used against rendered pages.
const (
	ResultsContainer = "ul.na-table"
	ResultAnchors    = "div.na-item a"
	PostContent      = "#bo_v_atc"
	PostBody         = "div.view-content"
	Comments         = "#bo_vc div.cmt_contents"
	SecretMarker     = "span.na-icon.na-secret"
)

// PostIDParam is the query parameter carrying the numeric post id in result links.
const PostIDParam = "wr_id"

// Site locates one board of the forum.
type Site struct {
	BaseURL string
	Board   string
}

// SearchURL returns the subject search page for query.
func (s Site) SearchURL(query string) string {
	return fmt.Sprintf("%s/bbs/search4.php?onetable=%s&bo_table=%s&sfl=wr_subject&stx=%s",
		strings.TrimRight(s.BaseURL, "/"), s.Board, s.Board, url.QueryEscape(query))
}

// PostURL returns the canonical page of a post.
func (s Site) PostURL(id string) string {
	return fmt.Sprintf("%s/bbs/%s/%s", strings.TrimRight(s.BaseURL, "/"), s.Board, id)
}
