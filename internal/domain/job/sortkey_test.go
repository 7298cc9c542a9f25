package job

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
)

func TestEncodeDecodeSK_RoundTrip(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

	sk := EncodeSK(ts, id)
	decodedTS, decodedID, err := DecodeSK(sk)
	require.NoError(t, err)
	assert.True(t, ts.Equal(decodedTS))
	assert.Equal(t, id, decodedID)
}

func TestEncodeSK_LexicalOrderAgreesWithChronological(t *testing.T) {
	earlier := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	later := time.Date(2025, 1, 15, 9, 0, 1, 0, time.UTC)
	id := uuid.New()

	skEarlier := EncodeSK(earlier, id)
	skLater := EncodeSK(later, id)
	assert.Less(t, skEarlier, skLater)
}

func TestEncodeSK_Injective(t *testing.T) {
	ts := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()
	assert.NotEqual(t, EncodeSK(ts, a), EncodeSK(ts, b))
}

func TestEncodeSKUpperBound_BoundsAllIDsAtThatInstant(t *testing.T) {
	at := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	upper := EncodeSKUpperBound(at)

	for i := 0; i < 20; i++ {
		sk := EncodeSK(at, uuid.New())
		assert.LessOrEqual(t, sk, upper)
	}
}

func TestDecodeSK_MalformedInputs(t *testing.T) {
	tests := []string{
		"",
		"not-a-scheduled-key",
		"scheduled#2025-01-15T09:00:00.000000+00:00",
		"scheduled##deadbeef",
		"scheduled#not-a-timestamp#" + "00000000000000000000000000000000",
		"scheduled#2025-01-15T09:00:00.000000+00:00#zz",
	}

	for _, sk := range tests {
		_, _, err := DecodeSK(sk)
		require.Error(t, err, "expected error for %q", sk)
		assert.True(t, appErrors.IsInvalidKey(err))
	}
}
