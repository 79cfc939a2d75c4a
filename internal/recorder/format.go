package recorder

// Format is a negotiated container/codec pair.
type Format struct {
	MIMEType  string `json:"mimeType"`
	Extension string `json:"extension"`
}

// FormatPriority is the order formats are tried in.
var FormatPriority = []Format{
	{MIMEType: "video/webm;codecs=vp9,opus", Extension: ".webm"},
	{MIMEType: "video/webm;codecs=vp8,opus", Extension: ".webm"},
	{MIMEType: "video/webm", Extension: ".webm"},
	{MIMEType: "video/mp4", Extension: ".mp4"},
}

// Negotiate returns the first format in FormatPriority the encoder supports.
func Negotiate(enc Encoder) (Format, bool) {
	for _, f := range FormatPriority {
		if enc.IsTypeSupported(f.MIMEType) {
			return f, true
		}
	}
	return Format{}, false
}

// FormatFor returns the priority-list entry for mime, if any.
func FormatFor(mime string) (Format, bool) {
	for _, f := range FormatPriority {
		if f.MIMEType == mime {
			return f, true
		}
	}
	return Format{}, false
}
