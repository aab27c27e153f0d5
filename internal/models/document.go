package models

// DocumentPage 单页文本
// Tokens are the page's text runs in reading order, top row first.
type DocumentPage struct {
	Number int      `json:"number"`
	Tokens []string `json:"tokens"`
}
