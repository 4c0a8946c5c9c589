// Package media classifies attachment names by extension.
package media

import (
	"fmt"
	"path"
	"strings"
)

// Filter restricts which attachments are transferred.
type Filter int

const (
	None Filter = iota
	VideoOnly
	ImageOnly
)

var (
	imageExts = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
		"bmp": true, "tiff": true, "svg": true, "heic": true,
	}
	videoExts = map[string]bool{
		"mp4": true, "webm": true, "mkv": true, "avi": true, "mov": true,
		"flv": true, "wmv": true, "mpg": true, "mpeg": true, "m4v": true,
	}
)

// ParseFilter maps the configuration names none, video and image.
func ParseFilter(name string) (Filter, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return None, nil
	case "video":
		return VideoOnly, nil
	case "image":
		return ImageOnly, nil
	}
	return None, fmt.Errorf("unknown media filter %q", name)
}

func (f Filter) String() string {
	switch f {
	case VideoOnly:
		return "video"
	case ImageOnly:
		return "image"
	default:
		return "none"
	}
}

// Ext returns the lower-cased extension of name without the dot, ignoring
// any query string.
func Ext(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// IsImage reports whether name has an image extension.
func IsImage(name string) bool { return imageExts[Ext(name)] }

// IsVideo reports whether name has a video extension.
func IsVideo(name string) bool { return videoExts[Ext(name)] }

// Allows reports whether f lets name through. Under an active filter a name
// without a recognized extension is rejected.
func (f Filter) Allows(name string) bool {
	switch f {
	case VideoOnly:
		return IsVideo(name)
	case ImageOnly:
		return IsImage(name)
	default:
		return true
	}
}
