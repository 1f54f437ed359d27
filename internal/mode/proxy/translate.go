package proxy

import "github.com/sv2d/sv2d/internal/transport"

// SV1 error codes, per the legacy Stratum convention most SV1 pools and
// miners agree on.
const (
	sv1ErrOther             = 20
	sv1ErrJobNotFound       = 21
	sv1ErrDuplicateShare    = 22
	sv1ErrLowDifficulty     = 23
	sv1ErrUnauthorizedWorker = 24
	sv1ErrNotSubscribed     = 25
)

// MapSV2ErrorToSV1 maps the SV2 error codes this proxy understands to their
// SV1 equivalents. Any SV2 error code not explicitly named here maps to
// sv1ErrOther; callers should log those occurrences so unmapped variants
// are visible to operators rather than silently flattened.
func MapSV2ErrorToSV1(sv2Code uint8) (sv1Code int, mapped bool) {
	switch sv2Code {
	case transport.ErrInvalidJobID:
		return sv1ErrJobNotFound, true
	case transport.ErrStaleShare:
		return sv1ErrJobNotFound, true
	case transport.ErrDuplicateShare:
		return sv1ErrDuplicateShare, true
	case transport.ErrLowDifficultyShare:
		return sv1ErrLowDifficulty, true
	case transport.ErrInvalidNonce:
		return sv1ErrLowDifficulty, true
	case transport.ErrUnauthorized:
		return sv1ErrUnauthorizedWorker, true
	default:
		return sv1ErrOther, false
	}
}

// JobMap tracks the SV2 job ID a translated SV1 job ID corresponds to, so a
// submitted SV1 share can be forwarded against the right upstream channel
// and job.
type JobMap struct {
	sv1ToSV2 map[string]uint32
	sv2ToSV1 map[uint32]string
}

// NewJobMap builds an empty bidirectional job id map.
func NewJobMap() *JobMap {
	return &JobMap{sv1ToSV2: make(map[string]uint32), sv2ToSV1: make(map[uint32]string)}
}

// Put records a correspondence between an SV1 job ID string and an SV2 job
// ID, replacing any job the same SV1 ID previously mapped to.
func (m *JobMap) Put(sv1JobID string, sv2JobID uint32) {
	m.sv1ToSV2[sv1JobID] = sv2JobID
	m.sv2ToSV1[sv2JobID] = sv1JobID
}

// SV2JobID looks up the SV2 job ID for a given SV1 job ID string.
func (m *JobMap) SV2JobID(sv1JobID string) (uint32, bool) {
	id, ok := m.sv1ToSV2[sv1JobID]
	return id, ok
}

// SV1JobID looks up the SV1 job ID string for a given SV2 job ID.
func (m *JobMap) SV1JobID(sv2JobID uint32) (string, bool) {
	id, ok := m.sv2ToSV1[sv2JobID]
	return id, ok
}
