package playlist

// Channel represents one entry of an extended M3U playlist: the descriptive
// metadata of an #EXTINF line together with the stream URL that follows it.
// Optional attributes are empty when the playlist does not carry them.
type Channel struct {
	Title     string
	Logo      string
	Group     string
	StreamURL string
	ID        string
	Language  string
	Country   string
}

// Result is the output of a single parse pass.
// Channels are kept in the order they appear in the playlist.
type Result struct {
	Channels []Channel
}

// Total returns the number of channels in the result.
func (r Result) Total() int {
	return len(r.Channels)
}

// Clone returns a copy of the result that shares no memory with the receiver.
func (r Result) Clone() Result {
	if r.Channels == nil {
		return Result{}
	}
	channels := make([]Channel, len(r.Channels))
	copy(channels, r.Channels)
	return Result{Channels: channels}
}
