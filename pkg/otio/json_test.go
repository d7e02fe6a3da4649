package otio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "OTIO_SCHEMA": "Timeline.1",
  "name": "sample",
  "global_start_time": {"value": 0, "rate": 24},
  "tracks": {
    "OTIO_SCHEMA": "Stack.1",
    "children": [
      {
        "OTIO_SCHEMA": "Track.1",
        "name": "V1",
        "kind": "Video",
        "children": [
          {
            "OTIO_SCHEMA": "Clip.2",
            "name": "shot010",
            "source_range": {
              "start_time": {"value": 0, "rate": 24},
              "duration": {"value": 48, "rate": 24}
            },
            "media_reference": {"target_url": "/media/shot010.mov"}
          },
          {
            "OTIO_SCHEMA": "Gap.1",
            "name": "",
            "source_range": {
              "start_time": {"value": 0, "rate": 24},
              "duration": {"value": 12, "rate": 24}
            }
          }
        ]
      }
    ]
  }
}`

func TestLoadParsesTracksClipsAndGaps(t *testing.T) {
	tl, err := Load(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	require.Len(t, tl.Tracks, 1)
	track := tl.Tracks[0]
	assert.Equal(t, TrackVideo, track.Kind)
	require.Len(t, track.Items, 2)

	clip := track.Items[0]
	assert.Equal(t, ItemClip, clip.Kind)
	require.NotNil(t, clip.Clip)
	assert.Equal(t, float64(48), clip.Clip.TrimmedRange.Duration.Value)

	gap := track.Items[1]
	assert.Equal(t, ItemGap, gap.Kind)
	assert.Equal(t, float64(48), gap.RangeInParent.Start.Value)
}

func TestSaveLoadRoundTripsTrackCount(t *testing.T) {
	original, err := Load(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, original))

	reloaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, len(original.Tracks), len(reloaded.Tracks))
	assert.Equal(t, len(original.Tracks[0].Items), len(reloaded.Tracks[0].Items))
}

func TestLoadRejectsUnknownItemSchema(t *testing.T) {
	doc := strings.Replace(sampleDoc, "Clip.2", "Clip.99", 1)
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}
