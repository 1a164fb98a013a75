package domain

// FormatPlan is the immutable result of format planning for one attempt
type FormatPlan struct {
	Selector    string   // fallback-chain selection expression handed to the tool
	Container   string   // output extension
	ContentType string   // MIME type of the artifact
	NeedsMerge  bool     // selector combines separate video and audio streams
	AudioOnly   bool     // direct audio-stream extraction
	Height      int      // resolution ceiling, 0 when unbounded or not applicable
	PostArgs    []string // container-specific post-processing arguments
	Cost        int      // relative resource cost; fallbacks strictly decrease it
	Label       string   // short human description, recorded in history
}

// MediaKind returns the validator media kind for the plan
func (p FormatPlan) MediaKind() MediaKind {
	if p.AudioOnly {
		return MediaAudio
	}
	return MediaVideo
}

// MediaKind distinguishes audio-only artifacts from ones carrying video
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)
