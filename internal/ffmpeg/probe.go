package ffmpeg

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Metadata describes the primary video stream of a media file.
// Duration is zero for still images.
type Metadata struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
}

// Probe retrieves metadata about a media file via ffprobe.
func (e *Engine) Probe(inputPath string) (*Metadata, error) {
	probe, err := ffmpeg.Probe(inputPath)
	if err != nil {
		return nil, errors.Wrap(err, "error probing media file")
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return nil, errors.WithStack(err)
	}

	streams, ok := data["streams"].([]interface{})
	if !ok || len(streams) == 0 {
		return nil, errors.New("no streams found in media file")
	}

	var videoStream map[string]interface{}
	for _, stream := range streams {
		s, ok := stream.(map[string]interface{})
		if !ok {
			continue
		}
		if codecType, _ := s["codec_type"].(string); codecType == "video" {
			videoStream = s
			break
		}
	}

	if videoStream == nil {
		return nil, errors.New("no video stream found")
	}

	meta := &Metadata{}
	if w, ok := videoStream["width"].(float64); ok {
		meta.Width = int(w)
	}
	if h, ok := videoStream["height"].(float64); ok {
		meta.Height = int(h)
	}
	if codec, ok := videoStream["codec_name"].(string); ok {
		meta.Codec = codec
	}
	meta.Duration = probeDuration(data, videoStream)

	return meta, nil
}

// probeDuration tries the stream duration first, then the container
// duration, then derives it from the frame count and rate. Still
// images legitimately report none of these.
func probeDuration(data, videoStream map[string]interface{}) float64 {
	if durationStr, ok := videoStream["duration"].(string); ok {
		if d, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64); err == nil && d > 0 {
			return d
		}
	}

	if format, ok := data["format"].(map[string]interface{}); ok {
		if durationStr, ok := format["duration"].(string); ok {
			if d, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64); err == nil && d > 0 {
				return d
			}
		}
	}

	nbFrames, ok := videoStream["nb_frames"].(string)
	if !ok {
		return 0
	}
	frames, err := strconv.ParseFloat(nbFrames, 64)
	if err != nil {
		return 0
	}
	rFrameRate, ok := videoStream["r_frame_rate"].(string)
	if !ok {
		return 0
	}
	nums := strings.Split(rFrameRate, "/")
	if len(nums) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(nums[0], 64)
	den, err2 := strconv.ParseFloat(nums[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return frames / (num / den)
}
