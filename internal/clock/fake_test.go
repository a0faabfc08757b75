package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFake_NowAdvanceSet(t *testing.T) {
	c := Fake(epoch)
	require.Equal(t, epoch, c.Now())

	c.Advance(90 * time.Second)
	require.Equal(t, epoch.Add(90*time.Second), c.Now())
	require.Equal(t, epoch.Add(90*time.Second).UnixMilli(), NowMillis(c))

	c.Set(epoch)
	require.Equal(t, epoch, c.Now())
}

func TestFake_TickerFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Minute)
	defer tk.Stop()

	c.Advance(30 * time.Second)
	select {
	case <-tk.C:
		t.Fatal("ticker fired before its interval")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-tk.C:
		require.Equal(t, epoch.Add(time.Minute), got)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestFake_StoppedTickerIsSilent(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	tk.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFake_NewTickerPanicsOnZero(t *testing.T) {
	require.Panics(t, func() { Fake(epoch).NewTicker(0) })
}
