package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagTopicName(t *testing.T) {
	tests := []struct {
		name      string
		tag       Tag
		namespace string
		want      string
	}{
		{"with namespace", Tag("orders-0"), "billing", "billing-orders-0"},
		{"empty namespace", Tag("orders-0"), "", "orders-0"},
		{"empty tag", Tag(""), "billing", "billing-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.tag.TopicName(tt.namespace))
		})
	}
}

func TestOffsetValid(t *testing.T) {
	require.False(t, OffsetNone.Valid())
	require.False(t, Offset(-7).Valid())
	require.True(t, Offset(0).Valid())
	require.True(t, Offset(123456).Valid())
}

func TestNewMessage(t *testing.T) {
	m1 := NewMessage([]byte("a"))
	m2 := NewMessage([]byte("b"))

	require.NotEmpty(t, m1.ID)
	require.NotEqual(t, m1.ID, m2.ID)
	require.Equal(t, []byte("a"), m1.Data)
	require.Nil(t, m1.Attributes)

	m1.SetAttribute("tag", "orders-0")
	require.Equal(t, "orders-0", m1.Attributes["tag"])
}
