package mosaic

import (
	"path/filepath"
	"strings"
)

// MediaKind identifies the broad media family of a corpus file, which
// determines the default descriptor extractor applied to it.
type MediaKind string

const (
	// MediaImage covers raster image files (jpg, png, ...).
	MediaImage MediaKind = "image"

	// MediaAudio covers sampled audio files (wav, ...).
	MediaAudio MediaKind = "audio"

	// MediaUnknown is returned for extensions outside both tables.
	MediaUnknown MediaKind = "unknown"
)

// Extension tables for media kind detection. Lookup is case-insensitive
// and keyed on the file extension including the dot.
var (
	imageExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".bmp": {}, ".gif": {},
	}
	audioExtensions = map[string]struct{}{
		".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {}, ".m4a": {},
	}
)

// DetectMediaKind classifies a file path by its extension.
//
// Returns MediaUnknown for extensions in neither table; callers decide
// whether that is an error or a skip.
func DetectMediaKind(path string) MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExtensions[ext]; ok {
		return MediaImage
	}
	if _, ok := audioExtensions[ext]; ok {
		return MediaAudio
	}
	return MediaUnknown
}

// Document is one corpus entry: a stable document id paired with the
// path of the media file it refers to.
//
// Documents are plain immutable values. The id is assigned by the
// caller (typically the surrounding storage layer) and must be unique
// within a corpus; it is the key under which histograms are stored and
// the id returned from searches.
type Document struct {
	id   uint32
	path string
}

// NewDocument creates a Document with the given id and file path.
func NewDocument(id uint32, path string) Document {
	return Document{id: id, path: path}
}

// ID returns the document id.
func (d Document) ID() uint32 {
	return d.id
}

// Path returns the media file path.
func (d Document) Path() string {
	return d.path
}

// MediaKind classifies the document's file by extension.
func (d Document) MediaKind() MediaKind {
	return DetectMediaKind(d.path)
}
