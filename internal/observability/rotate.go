package observability

import (
	"io"

	"github.com/jrick/logrotate/rotator"
)

// NewRotatingSink builds a log file sink that rotates once it exceeds
// maxSizeBytes, keeping up to maxRolls rotated files. A long-running daemon
// needs this; without it the log file simply grows forever.
func NewRotatingSink(filePath string, maxSizeBytes int64, maxRolls int) (io.WriteCloser, error) {
	r, err := rotator.New(filePath, maxSizeBytes, false, maxRolls)
	if err != nil {
		return nil, err
	}
	return r, nil
}
