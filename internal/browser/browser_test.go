package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/portalsuite/internal/config"
)

func TestSpecFor(t *testing.T) {
	tests := []struct {
		variant string
		want    launchSpec
		wantErr bool
	}{
		{"", launchSpec{engine: "chromium"}, false},
		{"chromium", launchSpec{engine: "chromium"}, false},
		{"Firefox", launchSpec{engine: "firefox"}, false},
		{"webkit", launchSpec{engine: "webkit"}, false},
		{"chrome", launchSpec{engine: "chromium", channel: "chrome"}, false},
		{"msedge", launchSpec{engine: "chromium", channel: "msedge"}, false},
		{"opera", launchSpec{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.variant, func(t *testing.T) {
			got, err := specFor(tt.variant)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngines(t *testing.T) {
	got, err := Engines([]string{"chromium", "chrome", "firefox", "chromium"})
	require.NoError(t, err)
	assert.Equal(t, []string{"chromium", "firefox"}, got)

	_, err = Engines([]string{"netscape"})
	assert.Error(t, err)
}

func TestTimeoutsFrom(t *testing.T) {
	cfg := config.BrowserConfig{
		OptimisticTimeout: 5 * time.Second,
		VisibleTimeout:    20 * time.Second,
		OverlayTimeout:    120 * time.Second,
		ProcessingTimeout: 200 * time.Second,
		NavigationTimeout: time.Minute,
	}
	got := TimeoutsFrom(cfg)
	assert.Equal(t, 5*time.Second, got.Optimistic)
	assert.Equal(t, 200*time.Second, got.Processing)
	assert.Equal(t, 120000.0, *ms(got.Overlay))
}

func TestTopIndex(t *testing.T) {
	assert.Equal(t, 0, topIndex(nil))
	assert.Equal(t, 0, topIndex([]int{-1, -1}))
	assert.Equal(t, 1, topIndex([]int{1050, 1060, 1055}))
	assert.Equal(t, 0, topIndex([]int{1050, 1050}), "first modal wins ties")
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 1050, toInt(1050))
	assert.Equal(t, 1050, toInt(int64(1050)))
	assert.Equal(t, 1050, toInt(float64(1050)))
	assert.Equal(t, 0, toInt("auto"))
}

func TestFrom(t *testing.T) {
	_, err := From(nil)
	assert.Error(t, err)

	p := &Page{}
	got, err := From(p)
	require.NoError(t, err)
	assert.Same(t, p, got)
}
