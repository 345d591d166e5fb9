package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	polyv "github.com/DevLARLEY/gopolyv"
)

// Yiihuu resolves videos of yiihuu.com.
type Yiihuu struct {
	client   *polyv.Client
	tokenURL string
	videoURL string
}

func NewYiihuu(client *polyv.Client) *Yiihuu {
	return &Yiihuu{
		client:   client,
		tokenURL: "https://www.yiihuu.com/polyv/polyv_get_token.php?vid=%s",
		videoURL: "https://www.yiihuu.com/get_video_uri.php?play_video_id=%s",
	}
}

func (y *Yiihuu) Name() string         { return "yiihuu" }
func (y *Yiihuu) CookieName() string   { return "PHPSESSID" }
func (y *Yiihuu) CookieDomain() string { return "www.yiihuu.com" }

func (y *Yiihuu) Token(ctx context.Context, videoID string) (string, error) {
	token, err := y.client.GetString(ctx, fmt.Sprintf(y.tokenURL, url.QueryEscape(videoID)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// VideoURI drops the "#..." suffix the endpoint appends to the URI.
func (y *Yiihuu) VideoURI(ctx context.Context, videoID string) (string, error) {
	body, err := y.client.GetString(ctx, fmt.Sprintf(y.videoURL, url.QueryEscape(videoID)))
	if err != nil {
		return "", err
	}

	uri, _, _ := strings.Cut(strings.TrimSpace(body), "#")
	if uri == "" {
		return "", fmt.Errorf("%w: empty video uri", polyv.ErrDecode)
	}
	return uri, nil
}
