package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PostID is a post identifier. The listing endpoint has returned both
// strings and numbers over time, so both decode.
type PostID string

func (id *PostID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PostID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("post id: %w", err)
	}
	*id = PostID(n.String())
	return nil
}

// ListingEntry is one element of a listing page.
type ListingEntry struct {
	ID    PostID `json:"id"`
	Title string `json:"title"`
}

// FileRef points at a stored file. Server and Path are nullable.
type FileRef struct {
	Name   string  `json:"name"`
	Path   *string `json:"path"`
	Server *string `json:"server"`
}

// PostBody is the post object nested in a post response.
type PostBody struct {
	ID    PostID   `json:"id"`
	User  string   `json:"user"`
	Title string   `json:"title"`
	File  *FileRef `json:"file"`
}

// PostResponse is the body of a post metadata request.
type PostResponse struct {
	Post        PostBody  `json:"post"`
	Attachments []FileRef `json:"attachments"`
	Previews    []FileRef `json:"previews"`
}

// ParseListing decodes a listing page into its entries.
func ParseListing(body []byte) ([]ListingEntry, error) {
	var entries []ListingEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ParsePost decodes a post metadata response.
func ParsePost(body []byte) (*PostResponse, error) {
	var post PostResponse
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}
