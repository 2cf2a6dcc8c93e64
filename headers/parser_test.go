package headers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllFieldsPresent(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "100")
	h.Set("X-RateLimit-Remaining", "42")
	h.Set("X-RateLimit-Reset", "4102444800") // far future epoch seconds
	h.Set("Retry-After", "30")
	h.Set("X-RateLimit-Policy", "100;w=60")

	parsed := Parse(h)
	require.NotNil(t, parsed.Limit)
	assert.EqualValues(t, 100, *parsed.Limit)
	assert.EqualValues(t, 42, *parsed.Remaining)
	assert.EqualValues(t, 30*time.Second, *parsed.RetryAfter)
	assert.Equal(t, "100;w=60", parsed.Policy)
	assert.NotNil(t, parsed.Reset)
	assert.True(t, parsed.AnyPresent())
}

func TestParse_AbsentHeadersYieldZeroValue(t *testing.T) {
	parsed := Parse(http.Header{})
	assert.False(t, parsed.AnyPresent())
	assert.Nil(t, parsed.Limit)
	assert.Nil(t, parsed.Remaining)
	assert.Nil(t, parsed.Reset)
	assert.Nil(t, parsed.RetryAfter)
	assert.Equal(t, "", parsed.Policy)
}

func TestParse_MalformedValuesDegradeToAbsent(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "not-a-number")
	h.Set("Retry-After", "-5")

	parsed := Parse(h)
	assert.Nil(t, parsed.Limit)
	assert.Nil(t, parsed.RetryAfter)
}

func TestParse_HeaderLookupIsCaseInsensitive(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-remaining", "0")

	parsed := Parse(h)
	require.NotNil(t, parsed.Remaining)
	assert.True(t, parsed.Exhausted())
}

func TestExhausted_FalseWhenRemainingPositive(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "5")
	assert.False(t, Parse(h).Exhausted())
}

func TestExhausted_FalseWhenRemainingAbsent(t *testing.T) {
	assert.False(t, Parse(http.Header{}).Exhausted())
}

func TestParse_ResetIsClampedToZeroWhenAlreadyPast(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Reset", "1")
	parsed := Parse(h)
	require.NotNil(t, parsed.Reset)
	assert.Equal(t, time.Duration(0), *parsed.Reset)
}
