// Package platform is the client for the creator platform's web APIs: room
// liveness and playlist resolution for the recorder, plus the manuscript,
// earnings, message-feed, and balance endpoints the dashboard ingests.
//
// Authentication is a session cookie supplied via configuration. The cookie
// is attached to every request and never logged.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"github.com/MicroDaWay/bilidash/internal/httpclient"
	"github.com/MicroDaWay/bilidash/internal/recorder"
)

// Errors returned by the platform client.
var (
	ErrInvalidRoomURL   = errors.New("invalid room url")
	ErrRoomNotLive      = errors.New("room is not live")
	ErrNoPlayableStream = errors.New("no playable stream in play info")
	ErrPlatformRejected = errors.New("platform rejected request")
)

// Config holds the platform endpoints and session credentials.
type Config struct {
	// APIBaseURL serves the general web API (manuscripts live under
	// MemberBaseURL, payments under PayBaseURL, live rooms under
	// LiveBaseURL, the message feed under MessageBaseURL).
	APIBaseURL     string
	LiveBaseURL    string
	PayBaseURL     string
	MemberBaseURL  string
	MessageBaseURL string

	// Cookie is the session cookie. Treated as a credential everywhere.
	Cookie string

	UserAgent string

	// Quality is the requested stream quality, highest first.
	Quality int

	// PageSize for paginated listings.
	PageSize int
}

// Client talks to the creator platform.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *slog.Logger
}

// New creates a platform client on top of the resilient HTTP client.
func New(cfg Config, hc *httpclient.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 10000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	return &Client{cfg: cfg, http: hc, logger: logger}
}

var roomIDPattern = regexp.MustCompile(`^/(\d+)`)

// ParseRoomID extracts the numeric room id from a broadcast room URL.
func ParseRoomID(roomURL string) (int64, error) {
	u, err := url.Parse(roomURL)
	if err != nil || u.Host == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRoomURL, roomURL)
	}
	m := roomIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return 0, fmt.Errorf("%w: no room id in path %q", ErrInvalidRoomURL, u.Path)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRoomURL, m[1])
	}
	return id, nil
}

// envelope is the platform's standard response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// getJSON performs an authenticated GET with the per-endpoint referer and
// unwraps the response envelope into out.
func (c *Client) getJSON(ctx context.Context, rawURL, referer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.send(req, referer, out)
}

// postJSON performs an authenticated JSON POST the same way.
func (c *Client) postJSON(ctx context.Context, rawURL, referer string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, referer, out)
}

func (c *Client) send(req *http.Request, referer string, out any) error {
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if c.cfg.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Cookie)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrPlatformRejected, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%w: code %d: %s", ErrPlatformRejected, env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

// RoomInfo describes a broadcast room.
type RoomInfo struct {
	UID        int64  `json:"uid"`
	RoomID     int64  `json:"room_id"`
	LiveStatus int    `json:"live_status"`
	Title      string `json:"title"`
	UserCover  string `json:"user_cover"`
	LiveTime   string `json:"live_time"`
	AreaName   string `json:"area_name"`
}

// Live reports whether the room is currently broadcasting.
func (r RoomInfo) Live() bool {
	return r.LiveStatus == 1
}

// RoomInfo fetches the room metadata, including its live status.
func (c *Client) RoomInfo(ctx context.Context, roomID int64) (RoomInfo, error) {
	var info RoomInfo
	u := fmt.Sprintf("%s/room/v1/Room/get_info?room_id=%d", c.cfg.LiveBaseURL, roomID)
	if err := c.getJSON(ctx, u, c.cfg.LiveBaseURL, &info); err != nil {
		return RoomInfo{}, fmt.Errorf("fetching room %d info: %w", roomID, err)
	}
	return info, nil
}

// MasterInfo fetches the broadcaster's profile for a user id.
func (c *Client) MasterInfo(ctx context.Context, uid int64) (string, error) {
	var data struct {
		Info struct {
			Uname string `json:"uname"`
		} `json:"info"`
	}
	u := fmt.Sprintf("%s/live_user/v1/Master/info?uid=%d", c.cfg.LiveBaseURL, uid)
	if err := c.getJSON(ctx, u, c.cfg.LiveBaseURL, &data); err != nil {
		return "", fmt.Errorf("fetching master info for uid %d: %w", uid, err)
	}
	return data.Info.Uname, nil
}

// IsLive answers the recorder's liveness query, combining room metadata with
// the broadcaster's name.
func (c *Client) IsLive(ctx context.Context, roomID int64) (recorder.RoomLiveness, error) {
	info, err := c.RoomInfo(ctx, roomID)
	if err != nil {
		return recorder.RoomLiveness{}, err
	}

	liv := recorder.RoomLiveness{
		Live:     info.Live(),
		Title:    info.Title,
		CoverURL: info.UserCover,
		LiveTime: info.LiveTime,
		AreaName: info.AreaName,
	}
	if name, err := c.MasterInfo(ctx, info.UID); err == nil && name != "" {
		liv.Performer = name
	} else {
		liv.Performer = fmt.Sprintf("room%d", roomID)
	}
	return liv, nil
}

// playInfo mirrors the play-info response: streams carry formats, formats
// carry codecs, codecs carry the URL parts to assemble.
type playInfo struct {
	PlayurlInfo struct {
		Playurl struct {
			Stream []struct {
				Format []struct {
					FormatName string `json:"format_name"`
					Codec      []struct {
						BaseURL string `json:"base_url"`
						URLInfo []struct {
							Host  string `json:"host"`
							Extra string `json:"extra"`
						} `json:"url_info"`
					} `json:"codec"`
				} `json:"format"`
			} `json:"stream"`
		} `json:"playurl"`
	} `json:"playurl_info"`
}

// ResolveLiveURL mints a fresh, signed playlist URL for the room. HLS
// formats are required; the first assemblable candidate wins. The returned
// URL is time-limited and must be treated as single-use.
func (c *Client) ResolveLiveURL(ctx context.Context, roomID int64) (string, error) {
	var info playInfo
	u := fmt.Sprintf(
		"%s/xlive/web-room/v2/index/getRoomPlayInfo?room_id=%d&protocol=0,1&format=0,1,2&codec=0,1&qn=%d&platform=web",
		c.cfg.LiveBaseURL, roomID, c.cfg.Quality,
	)
	if err := c.getJSON(ctx, u, c.cfg.LiveBaseURL, &info); err != nil {
		return "", fmt.Errorf("fetching play info for room %d: %w", roomID, err)
	}

	for _, stream := range info.PlayurlInfo.Playurl.Stream {
		for _, format := range stream.Format {
			if !strings.Contains(format.FormatName, "ts") && !strings.Contains(format.FormatName, "fmp4") {
				continue
			}
			for _, codec := range format.Codec {
				if codec.BaseURL == "" || len(codec.URLInfo) == 0 {
					continue
				}
				part := codec.URLInfo[0]
				if part.Host == "" {
					continue
				}
				playlist := part.Host + codec.BaseURL + part.Extra
				return c.selectVariant(ctx, playlist), nil
			}
		}
	}
	return "", fmt.Errorf("%w: room %d", ErrNoPlayableStream, roomID)
}

// selectVariant resolves a master playlist to its highest-bandwidth variant.
// Media playlists, and anything that fails to fetch or parse, pass through
// unchanged; the capture subprocess can consume the original URL either way.
func (c *Client) selectVariant(ctx context.Context, playlistURL string) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := c.http.Get(ctx, playlistURL)
	if err != nil {
		c.logger.Debug("playlist probe failed, using original url", slog.String("error", err.Error()))
		return playlistURL
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return playlistURL
	}
	playlist, kind, err := m3u8.Decode(*bytes.NewBuffer(body), true)
	if err != nil || kind != m3u8.MASTER {
		return playlistURL
	}

	master := playlist.(*m3u8.MasterPlaylist)
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil || best.URI == "" {
		return playlistURL
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		return playlistURL
	}
	ref, err := url.Parse(best.URI)
	if err != nil {
		return playlistURL
	}
	resolved := base.ResolveReference(ref).String()
	c.logger.Debug("selected master playlist variant",
		slog.Uint64("bandwidth", uint64(best.Bandwidth)),
		slog.String("variant", resolved),
	)
	return resolved
}
