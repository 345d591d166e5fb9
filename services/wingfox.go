package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	polyv "github.com/DevLARLEY/gopolyv"
)

// WingFox resolves videos of wingfox.com.
type WingFox struct {
	client   *polyv.Client
	tokenURL string
	videoURL string
}

func NewWingFox(client *polyv.Client) *WingFox {
	return &WingFox{
		client:   client,
		tokenURL: "https://www.wingfox.com/polyv/polyv_get_token.php?video_id=%s",
		videoURL: "https://api.wingfox.com/api/album/get_video_url?play_video_id=%s",
	}
}

func (w *WingFox) Name() string         { return "wingfox" }
func (w *WingFox) CookieName() string   { return "yiihuu_s_c_d" }
func (w *WingFox) CookieDomain() string { return ".wingfox.com" }

func (w *WingFox) Token(ctx context.Context, videoID string) (string, error) {
	token, err := w.client.GetString(ctx, fmt.Sprintf(w.tokenURL, url.QueryEscape(videoID)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (w *WingFox) VideoURI(ctx context.Context, videoID string) (string, error) {
	body, err := w.client.GetString(ctx, fmt.Sprintf(w.videoURL, url.QueryEscape(videoID)))
	if err != nil {
		return "", err
	}

	vid := gjson.Get(body, "data.video_vid").String()
	if vid == "" {
		return "", fmt.Errorf("%w: no data.video_vid in response", polyv.ErrDecode)
	}
	return vid, nil
}
