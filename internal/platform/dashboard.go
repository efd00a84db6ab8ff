package platform

import (
	"context"
	"fmt"
	"time"
)

// Manuscript is one published work as reported by the member API.
type Manuscript struct {
	Title    string
	Tag      string
	View     int64
	PostedAt time.Time
}

// ManuscriptPage is one page of the manuscript listing.
type ManuscriptPage struct {
	Items    []Manuscript
	Page     int
	PageSize int
	Total    int
}

// TotalPages derives the page count from the listing totals.
func (p ManuscriptPage) TotalPages() int {
	if p.PageSize <= 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// Manuscripts fetches one page of the creator's published works.
func (c *Client) Manuscripts(ctx context.Context, page int) (ManuscriptPage, error) {
	var data struct {
		ArcAudits []struct {
			Archive struct {
				Title string `json:"title"`
				Tag   string `json:"tag"`
				Ptime int64  `json:"ptime"`
			} `json:"Archive"`
			Stat struct {
				View int64 `json:"view"`
			} `json:"stat"`
		} `json:"arc_audits"`
		Page struct {
			Pn    int `json:"pn"`
			Ps    int `json:"ps"`
			Count int `json:"count"`
		} `json:"page"`
	}

	u := fmt.Sprintf("%s/x/web/archives?pn=%d&ps=%d", c.cfg.MemberBaseURL, page, c.cfg.PageSize)
	referer := c.cfg.MemberBaseURL + "/platform/upload-manager/article"
	if err := c.getJSON(ctx, u, referer, &data); err != nil {
		return ManuscriptPage{}, fmt.Errorf("fetching manuscripts page %d: %w", page, err)
	}

	result := ManuscriptPage{
		Page:     data.Page.Pn,
		PageSize: data.Page.Ps,
		Total:    data.Page.Count,
	}
	for _, item := range data.ArcAudits {
		result.Items = append(result.Items, Manuscript{
			Title:    item.Archive.Title,
			Tag:      item.Archive.Tag,
			View:     item.Stat.View,
			PostedAt: time.Unix(item.Archive.Ptime, 0),
		})
	}
	return result, nil
}

// EarningRecord is one entry of the payment transaction listing. Title
// names the reward activity, or the withdrawal channel for payouts.
type EarningRecord struct {
	Title      string
	Amount     float64
	CreatedAt  string
	StatusDesc string
}

// EarningsPage is one page of the earnings listing.
type EarningsPage struct {
	Records    []EarningRecord
	Page       int
	TotalPages int
}

// Earnings fetches one page of the creator's payment transactions.
func (c *Client) Earnings(ctx context.Context, page int) (EarningsPage, error) {
	var data struct {
		Result []struct {
			Brokerage  float64 `json:"brokerage"`
			Title      string  `json:"title"`
			Ctime      string  `json:"ctime"`
			StatusDesc string  `json:"statusDesc"`
		} `json:"result"`
		Page struct {
			TotalPage int `json:"totalPage"`
		} `json:"page"`
	}

	payload := map[string]any{
		"currentPage": page,
		"pageSize":    20,
		"sdkVersion":  "1.1.7",
		"traceId":     time.Now().Unix(),
	}
	u := c.cfg.PayBaseURL + "/payplatform/cashier/bk/trans/list"
	referer := c.cfg.PayBaseURL + "/pay-v2/shell/bill"
	if err := c.postJSON(ctx, u, referer, payload, &data); err != nil {
		return EarningsPage{}, fmt.Errorf("fetching earnings page %d: %w", page, err)
	}

	result := EarningsPage{Page: page, TotalPages: data.Page.TotalPage}
	for _, item := range data.Result {
		result.Records = append(result.Records, EarningRecord{
			Title:      item.Title,
			Amount:     item.Brokerage,
			CreatedAt:  item.Ctime,
			StatusDesc: item.StatusDesc,
		})
	}
	return result, nil
}

// noticeTalkerID is the system account that delivers event notices,
// including disqualification messages.
const noticeTalkerID = 844424930131966

// SessionMessage is one system notice from the platform's message feed.
type SessionMessage struct {
	Content   string
	Timestamp int64
}

// MessagePage is one backward page of the message feed. Paging continues
// from MinSeqno while HasMore is set.
type MessagePage struct {
	Messages []SessionMessage
	HasMore  bool
	MinSeqno int64
}

// Messages fetches one page of the system-notice session, walking backward
// in time. A zero endSeqno starts at the newest message.
func (c *Client) Messages(ctx context.Context, endSeqno int64) (MessagePage, error) {
	var data struct {
		HasMore  int `json:"has_more"`
		Messages []struct {
			Content   string `json:"content"`
			Timestamp int64  `json:"timestamp"`
		} `json:"messages"`
		MinSeqno int64 `json:"min_seqno"`
	}

	u := fmt.Sprintf("%s/svr_sync/v1/svr_sync/fetch_session_msgs?size=20&session_type=1&talker_id=%d",
		c.cfg.MessageBaseURL, noticeTalkerID)
	if endSeqno > 0 {
		u += fmt.Sprintf("&end_seqno=%d", endSeqno)
	}
	if err := c.getJSON(ctx, u, "https://text.bilibili.com", &data); err != nil {
		return MessagePage{}, fmt.Errorf("fetching messages before seqno %d: %w", endSeqno, err)
	}

	result := MessagePage{HasMore: data.HasMore != 0, MinSeqno: data.MinSeqno}
	for _, item := range data.Messages {
		result.Messages = append(result.Messages, SessionMessage{
			Content:   item.Content,
			Timestamp: item.Timestamp,
		})
	}
	return result, nil
}

// Balance fetches the creator's current withdrawable balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var data struct {
		Brokerage float64 `json:"brokerage"`
	}
	payload := map[string]any{
		"sdkVersion": "1.1.7",
		"timestamp":  time.Now().Unix(),
		"traceId":    time.Now().Unix(),
	}
	u := c.cfg.PayBaseURL + "/bk/brokerage/getUserBrokerage"
	referer := c.cfg.PayBaseURL + "/pay-v2/shell/index"
	if err := c.postJSON(ctx, u, referer, payload, &data); err != nil {
		return 0, fmt.Errorf("fetching balance: %w", err)
	}
	return data.Brokerage, nil
}
