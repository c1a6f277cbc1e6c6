package playback

// Device is an acquired speaker exposing its clock and voices.
type Device interface {
	Output() Output
	Close() error
}

// Opener acquires the speaker for one session.
type Opener interface {
	OpenOutput(rate int, tap *Analyser) (Device, error)
}
