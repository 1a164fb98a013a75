package domain

// Transcript records the raw tool conversation of one attempt
type Transcript interface {
	WriteLine(line string)
	Close(success bool, message string)
}

// TranscriptOpener opens a transcript per attempt
type TranscriptOpener interface {
	OpenTranscript(correlationID string, attempt int, command []string) Transcript
}

type nopTranscript struct{}

func (nopTranscript) WriteLine(string)   {}
func (nopTranscript) Close(bool, string) {}

// NopTranscript discards everything
var NopTranscript Transcript = nopTranscript{}
