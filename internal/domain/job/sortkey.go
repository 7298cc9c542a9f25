package job

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
)

const (
	skPrefix   = "scheduled#"
	skSep      = "#"
	iso8601UTC = "2006-01-02T15:04:05.000000+00:00"
)

// skSentinelMax is any byte value greater than every character the hex job
// id encoding can produce ([0-9a-f]); it upper-bounds an SK range query
// that must include every job due at or before a given instant regardless
// of job id.
const skSentinelMax = "~"

// EncodeSK builds the sort key for a scheduled job: lexical order on this
// string agrees with chronological order on scheduledFor because the
// timestamp is rendered with a fixed UTC offset and fixed-width fields, and
// the job id is rendered as lowercase hex so it never collides with the
// timestamp separator or the sentinel upper bound.
func EncodeSK(scheduledFor time.Time, jobID uuid.UUID) string {
	ts := scheduledFor.UTC().Format(iso8601UTC)
	return skPrefix + ts + skSep + hex.EncodeToString(jobID[:])
}

// EncodeSKUpperBound builds the SK upper bound for a due-jobs range query:
// every job with scheduled_for <= at, regardless of job id, sorts at or
// below this value.
func EncodeSKUpperBound(at time.Time) string {
	ts := at.UTC().Format(iso8601UTC)
	return skPrefix + ts + skSep + skSentinelMax
}

// DecodeSK inverts EncodeSK. A malformed SK yields InvalidKey.
func DecodeSK(sk string) (scheduledFor time.Time, jobID uuid.UUID, err error) {
	rest, ok := strings.CutPrefix(sk, skPrefix)
	if !ok {
		return time.Time{}, uuid.Nil, appErrors.InvalidKeyf("sort key %q missing %q prefix", sk, skPrefix)
	}

	ts, hexID, ok := strings.Cut(rest, skSep)
	if !ok || ts == "" || hexID == "" {
		return time.Time{}, uuid.Nil, appErrors.InvalidKeyf("sort key %q is not well-formed", sk)
	}

	parsed, parseErr := time.Parse(iso8601UTC, ts)
	if parseErr != nil {
		return time.Time{}, uuid.Nil, appErrors.Wrapf(parseErr, appErrors.ErrCodeInvalidKey, "sort key %q has an invalid timestamp", sk)
	}

	raw, decodeErr := hex.DecodeString(hexID)
	if decodeErr != nil || len(raw) != 16 {
		return time.Time{}, uuid.Nil, appErrors.InvalidKeyf("sort key %q has an invalid job id encoding", sk)
	}

	id, idErr := uuid.FromBytes(raw)
	if idErr != nil {
		return time.Time{}, uuid.Nil, appErrors.Wrapf(idErr, appErrors.ErrCodeInvalidKey, "sort key %q has an invalid job id", sk)
	}

	return parsed, id, nil
}
