package model

// ImageMetadata describes the decoded original and the derivatives cut from it.
// Width and Height are measured after orientation has been applied.
type ImageMetadata struct {
	Format        string `json:"format"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Orientation   int    `json:"orientation"`
	ThumbWidth    int    `json:"thumb_width"`
	ThumbHeight   int    `json:"thumb_height"`
	PreviewWidth  int    `json:"preview_width"`
	PreviewHeight int    `json:"preview_height"`
	Watermarked   bool   `json:"watermarked"`
}

// ProcessedResult is the output of one pipeline run.
type ProcessedResult struct {
	Metadata ImageMetadata
	// EXIF is the sanitized EXIF document; never nil.
	EXIF          map[string]any
	BlurHash      string
	ThumbBuffer   []byte
	PreviewBuffer []byte
}
