// Package models defines the server-side records of the transfer subsystem.
package models

import "strings"

// Category is the media category that, together with size, selects a
// storage tier.
type Category string

const (
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryOther    Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAudio, CategoryVideo, CategoryImage, CategoryDocument, CategoryOther:
		return true
	}
	return false
}

// ClassifyContentType maps a MIME type to a category.
func ClassifyContentType(contentType string) Category {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(ct, "video/"):
		return CategoryVideo
	case strings.HasPrefix(ct, "image/"):
		return CategoryImage
	case strings.HasPrefix(ct, "text/"),
		ct == "application/pdf",
		ct == "application/msword",
		ct == "application/rtf",
		ct == "application/epub+zip",
		strings.HasPrefix(ct, "application/vnd.openxmlformats-officedocument."),
		strings.HasPrefix(ct, "application/vnd.oasis.opendocument."):
		return CategoryDocument
	}
	return CategoryOther
}

// Destination carries what the media catalog needs to file a finished blob.
type Destination struct {
	Category    Category
	Visibility  string
	Owner       string
	Title       string
	Description string
}

// ResolveCategory returns d.Category when set and valid, otherwise the
// category derived from contentType.
func (d Destination) ResolveCategory(contentType string) Category {
	if d.Category.Valid() {
		return d.Category
	}
	return ClassifyContentType(contentType)
}
