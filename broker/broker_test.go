package broker

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xinjiayu/rx"
)

type playerScored struct {
	Name  string
	Goals int
}

type playerSentOff struct {
	Name   string
	Reason string
}

type player struct {
	client *Client
	goals  int
}

func newPlayer(t *testing.T, b *Broker, name string, log *[]string) *player {
	t.Helper()
	p := &player{client: b.Client(name)}
	_, err := Subscribe(p.client, func(e playerScored) {
		*log = append(*log, fmt.Sprintf("%s: Nicely done, %s! It's your %d goal.", name, e.Name, e.Goals))
	}, func(e playerScored) bool { return e.Name != name })
	require.NoError(t, err)
	_, err = Subscribe(p.client, func(e playerSentOff) {
		*log = append(*log, fmt.Sprintf("%s: See you in the lockers, %s!", name, e.Name))
	}, func(e playerSentOff) bool { return e.Name != name })
	require.NoError(t, err)
	return p
}

func (p *player) score(t *testing.T) {
	p.goals++
	require.NoError(t, p.client.Publish(playerScored{Name: p.client.Name, Goals: p.goals}))
}

func TestBrokerFootballMatch(t *testing.T) {
	b := New(rx.WithName("match"))
	defer b.Close()

	var log []string
	coach := b.Client("Coach")
	_, err := Subscribe(coach, func(e playerScored) {
		if e.Goals < 3 {
			log = append(log, "Coach: well done, "+e.Name)
		}
	})
	require.NoError(t, err)
	_, err = Subscribe(coach, func(e playerSentOff) {
		log = append(log, "Coach: well done, "+e.Name)
	})
	require.NoError(t, err)

	john := newPlayer(t, b, "John", &log)
	chris := newPlayer(t, b, "Chris", &log)

	john.score(t)
	john.score(t)
	john.score(t)
	require.NoError(t, john.client.Publish(playerSentOff{Name: "John", Reason: "violence"}))
	chris.score(t)

	want := []string{
		"Coach: well done, John",
		"Chris: Nicely done, John! It's your 1 goal.",
		"Coach: well done, John",
		"Chris: Nicely done, John! It's your 2 goal.",
		"Chris: Nicely done, John! It's your 3 goal.",
		"Coach: well done, John",
		"Chris: See you in the lockers, John!",
		"Coach: well done, Chris",
		"John: Nicely done, Chris! It's your 1 goal.",
	}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("event log mismatch (-want +got):\n%s", diff)
	}
}

func TestBrokerClients(t *testing.T) {
	t.Run("关闭 client 后不再收到事件", func(t *testing.T) {
		b := New()
		defer b.Close()

		c := b.Client("listener")
		var got []int
		_, err := Subscribe(c, func(v int) { got = append(got, v) })
		require.NoError(t, err)

		require.NoError(t, b.Publish(1))
		c.Close()
		require.NoError(t, b.Publish(2))

		assert.Equal(t, []int{1}, got)
		_, ok := b.Lookup(c.ID)
		assert.False(t, ok)

		_, err = Subscribe(c, func(int) {})
		require.ErrorIs(t, err, ErrClosed)
	})

	t.Run("只接收匹配类型的事件", func(t *testing.T) {
		b := New()
		defer b.Close()

		var ints []int
		var strs []string
		c := b.Client("typed")
		_, err := Subscribe(c, func(v int) { ints = append(ints, v) })
		require.NoError(t, err)
		_, err = Subscribe(c, func(v string) { strs = append(strs, v) })
		require.NoError(t, err)

		for _, e := range []any{1, "a", 2.5, 3, "b"} {
			require.NoError(t, b.Publish(e))
		}
		assert.Equal(t, []int{1, 3}, ints)
		assert.Equal(t, []string{"a", "b"}, strs)
	})

	t.Run("关闭 broker", func(t *testing.T) {
		b := New()
		a := b.Client("a")
		b.Client("b")
		assert.Equal(t, 2, b.Clients())

		completed := false
		rx.SubscribeWithCallbacks(b.Events(), nil, nil, func() { completed = true })

		b.Close()
		assert.True(t, completed)
		assert.Equal(t, 0, b.Clients())
		require.ErrorIs(t, b.Publish(1), ErrClosed)
		require.ErrorIs(t, a.Publish(1), ErrClosed)
		b.Close()
	})
}
