package eventbus

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDeathCountReadsMatchingQueueEntry(t *testing.T) {
	headers := amqp.Table{
		"x-death": []any{
			amqp.Table{"queue": "q.other", "count": int64(7)},
			amqp.Table{"queue": "q.inventory.order-created", "count": int64(2)},
		},
	}

	assert.Equal(t, int64(2), deathCount(headers, "q.inventory.order-created"))
	assert.Equal(t, int64(7), deathCount(headers, "q.other"))
	assert.Equal(t, int64(0), deathCount(headers, "q.unseen"))
}

func TestDeathCountToleratesMissingOrMalformedHeader(t *testing.T) {
	assert.Equal(t, int64(0), deathCount(nil, "q"))
	assert.Equal(t, int64(0), deathCount(amqp.Table{}, "q"))
	assert.Equal(t, int64(0), deathCount(amqp.Table{"x-death": "bogus"}, "q"))
	assert.Equal(t, int64(0), deathCount(amqp.Table{"x-death": []any{"bogus"}}, "q"))
}

func TestDeathCountAcceptsAlternateIntegerWidths(t *testing.T) {
	for _, count := range []any{int64(3), int32(3), int(3)} {
		headers := amqp.Table{
			"x-death": []any{amqp.Table{"queue": "q", "count": count}},
		}
		assert.Equal(t, int64(3), deathCount(headers, "q"))
	}
}

func TestShortErrorTruncatesAt300Chars(t *testing.T) {
	short := errors.New("boom")
	assert.Equal(t, "boom", shortError(short))

	long := errors.New(strings.Repeat("x", 500))
	assert.Len(t, shortError(long), 300)
}

func TestNonRetryableErrorWrapsCause(t *testing.T) {
	cause := errors.New("reserved quantity underflow")
	err := NewNonRetryableError(fmt.Errorf("release failed: %w", cause))

	var nonRetry NonRetryableError
	assert.True(t, errors.As(error(err), &nonRetry))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "underflow")

	assert.Equal(t, "non-retryable failure", NonRetryableError{}.Error())
}
