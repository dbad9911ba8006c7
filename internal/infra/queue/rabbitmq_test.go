package mq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestTableCarrier(t *testing.T) {
	c := tableCarrier{table: amqp.Table{"count": 3}}
	c.Set("traceparent", "00-abc-def-01")

	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	assert.Equal(t, "3", c.Get("count"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"count", "traceparent"}, c.Keys())
}
