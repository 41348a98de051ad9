package converter

// Image is one extracted image. ID is the name the Markdown refers to.
type Image struct {
	ID   string
	Data []byte
}

// PartStats records how a split PDF was converted. Parts is 0 for
// documents converted in one pass.
type PartStats struct {
	Parts     int `json:"parts"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Result is the output of an adapter: Markdown whose image references are
// bare image ids, plus the images in extraction order.
type Result struct {
	SourcePath string
	Markdown   string
	Images     []Image
	Parts      PartStats
}

// Request asks for one document to be converted.
type Request struct {
	SourcePath string
	// OutputRoot receives the per-document folder. Empty means the
	// configured output directory.
	OutputRoot string
	// InlineImages embeds images as data URIs instead of writing an
	// images folder.
	InlineImages bool
}
