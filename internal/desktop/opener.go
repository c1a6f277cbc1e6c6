package desktop

import (
	"strings"

	"github.com/skratchdot/open-golang/open"
)

// Opener launches a file, URL or app name with the platform default handler.
type Opener interface {
	Open(target string) error
}

type SystemOpener struct{}

func (SystemOpener) Open(target string) error {
	return open.Start(strings.TrimSpace(target))
}
