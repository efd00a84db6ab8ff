// Package ingest pulls creator data from the platform APIs into the local
// database. Syncs run page by page with a fixed delay between requests to
// stay under the platform's rate limits.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MicroDaWay/bilidash/internal/models"
	"github.com/MicroDaWay/bilidash/internal/platform"
	"github.com/MicroDaWay/bilidash/internal/repository"
)

// ErrSyncInProgress is returned when a sync is requested while another
// one is still running.
var ErrSyncInProgress = errors.New("ingest: sync already in progress")

// Withdrawal entries appear in the earnings listing under fixed titles.
const (
	titleBankWithdrawal   = "银行卡提现"
	titleAlipayWithdrawal = "支付宝提现"
	statusReversed        = "撤销转入"

	earningTimeLayout = "2006-01-02 15:04:05"
)

// Disqualification notices arrive as system messages carrying a fixed
// phrase; the scan stops once it walks past the lookback window.
const (
	disqualificationMarker = "由于不符合本次征稿活动的规则"
	disqualificationWindow = 10 * 24 * time.Hour
)

// Source is the subset of the platform client the syncer depends on.
type Source interface {
	Manuscripts(ctx context.Context, page int) (platform.ManuscriptPage, error)
	Earnings(ctx context.Context, page int) (platform.EarningsPage, error)
	Messages(ctx context.Context, endSeqno int64) (platform.MessagePage, error)
}

// Syncer refreshes the local manuscript, reward, withdrawal and
// disqualification tables from the platform.
type Syncer struct {
	source            Source
	manuscripts       repository.ManuscriptRepository
	rewards           repository.RewardRepository
	withdrawals       repository.WithdrawalRepository
	disqualifications repository.DisqualificationRepository
	logger            *slog.Logger
	pageDelay         time.Duration

	mu sync.Mutex
}

// Options configures a Syncer.
type Options struct {
	// PageDelay is slept between consecutive page requests.
	PageDelay time.Duration
	Logger    *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(
	source Source,
	manuscripts repository.ManuscriptRepository,
	rewards repository.RewardRepository,
	withdrawals repository.WithdrawalRepository,
	disqualifications repository.DisqualificationRepository,
	opts Options,
) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		source:            source,
		manuscripts:       manuscripts,
		rewards:           rewards,
		withdrawals:       withdrawals,
		disqualifications: disqualifications,
		logger:            logger,
		pageDelay:         opts.PageDelay,
	}
}

// InProgress reports whether a sync is currently running.
func (s *Syncer) InProgress() bool {
	if !s.mu.TryLock() {
		return true
	}
	s.mu.Unlock()
	return false
}

// SyncAll refreshes every synced table. Only one sync runs at a time;
// a second call while one is in flight returns ErrSyncInProgress.
func (s *Syncer) SyncAll(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrSyncInProgress
	}
	defer s.mu.Unlock()

	start := time.Now()
	s.logger.Info("Starting platform sync")

	if err := s.syncManuscripts(ctx); err != nil {
		return fmt.Errorf("syncing manuscripts: %w", err)
	}
	if err := s.syncEarnings(ctx); err != nil {
		return fmt.Errorf("syncing earnings: %w", err)
	}
	// Runs after the manuscript sync: notices are enriched with the tag and
	// view count of the matching work in the fresh snapshot.
	if err := s.syncDisqualifications(ctx); err != nil {
		return fmt.Errorf("syncing disqualifications: %w", err)
	}

	s.logger.Info("Platform sync complete", "duration", time.Since(start))
	return nil
}

func (s *Syncer) syncManuscripts(ctx context.Context) error {
	var all []*models.Manuscript

	for page := 1; ; page++ {
		result, err := s.source.Manuscripts(ctx, page)
		if err != nil {
			return err
		}
		for _, item := range result.Items {
			all = append(all, &models.Manuscript{
				Title:    item.Title,
				Tag:      item.Tag,
				View:     item.View,
				PostedAt: item.PostedAt,
			})
		}
		s.logger.Debug("Fetched manuscript page", "page", page, "items", len(result.Items))

		if page >= result.TotalPages() || len(result.Items) == 0 {
			break
		}
		if err := s.pause(ctx); err != nil {
			return err
		}
	}

	if err := s.manuscripts.ReplaceAll(ctx, all); err != nil {
		return err
	}
	s.logger.Info("Manuscripts synced", "count", len(all))
	return nil
}

func (s *Syncer) syncEarnings(ctx context.Context) error {
	var rewards []*models.Reward
	var withdrawn, skipped int

	for page := 1; ; page++ {
		result, err := s.source.Earnings(ctx, page)
		if err != nil {
			return err
		}
		for _, record := range result.Records {
			if strings.Contains(record.StatusDesc, statusReversed) {
				skipped++
				continue
			}
			channel, isWithdrawal := withdrawalChannel(record.Title)
			if !isWithdrawal {
				grantedAt, err := parseEarningTime(record.CreatedAt)
				if err != nil {
					s.logger.Warn("Skipping earning with unparseable time",
						"title", record.Title, "ctime", record.CreatedAt)
					continue
				}
				rewards = append(rewards, &models.Reward{
					ProductName: record.Title,
					Money:       record.Amount,
					GrantedAt:   grantedAt,
				})
				continue
			}

			createdAt, err := parseEarningTime(record.CreatedAt)
			if err != nil {
				s.logger.Warn("Skipping withdrawal with unparseable time",
					"title", record.Title, "ctime", record.CreatedAt)
				continue
			}
			w := &models.Withdrawal{
				Year:      createdAt.Year(),
				Month:     int(createdAt.Month()),
				Brokerage: record.Amount,
				Type:      channel,
			}
			if err := s.withdrawals.Upsert(ctx, w); err != nil {
				return err
			}
			withdrawn++
		}
		s.logger.Debug("Fetched earnings page", "page", page, "records", len(result.Records))

		if page >= result.TotalPages || len(result.Records) == 0 {
			break
		}
		if err := s.pause(ctx); err != nil {
			return err
		}
	}

	// The listing has no stable identifier, so rewards are replaced
	// wholesale on every sync.
	if err := s.rewards.DeleteAll(ctx); err != nil {
		return err
	}
	for _, reward := range rewards {
		if err := s.rewards.Create(ctx, reward); err != nil {
			return err
		}
	}

	s.logger.Info("Earnings synced",
		"rewards", len(rewards), "withdrawals", withdrawn, "reversed", skipped)
	return nil
}

// syncDisqualifications walks the system message feed backward collecting
// disqualification notices, stopping at the lookback window. The feed has
// no stable identifiers either, so rows are keyed by title and notice time
// and duplicate inserts are ignored.
func (s *Syncer) syncDisqualifications(ctx context.Context) error {
	cutoff := time.Now().Add(-disqualificationWindow)
	var entries []*models.Disqualification
	var endSeqno int64
	var stale bool

	for {
		page, err := s.source.Messages(ctx, endSeqno)
		if err != nil {
			return err
		}
		for _, msg := range page.Messages {
			if !strings.Contains(msg.Content, disqualificationMarker) {
				continue
			}
			noticedAt := time.Unix(msg.Timestamp, 0)
			if noticedAt.Before(cutoff) {
				stale = true
				break
			}
			title, ok := noticeTitle(msg.Content)
			if !ok {
				s.logger.Warn("Skipping notice without a usable title")
				continue
			}

			entry := &models.Disqualification{Title: title, PostedAt: noticedAt}
			work, err := s.manuscripts.FindByTitle(ctx, title)
			if err != nil {
				return err
			}
			if work != nil {
				entry.Tag = work.Tag
				entry.View = work.View
			}
			entries = append(entries, entry)
		}
		s.logger.Debug("Fetched message page", "messages", len(page.Messages), "min_seqno", page.MinSeqno)

		if stale || !page.HasMore {
			break
		}
		endSeqno = page.MinSeqno
		if err := s.pause(ctx); err != nil {
			return err
		}
	}

	if err := s.disqualifications.UpsertBatch(ctx, entries); err != nil {
		return err
	}
	s.logger.Info("Disqualifications synced", "count", len(entries))
	return nil
}

// noticeTitle extracts the work title quoted with 《》 from a notice body.
// Titles without any CJK character are rejected; the feed always formats
// real works with one.
func noticeTitle(content string) (string, bool) {
	start := strings.Index(content, "《")
	if start < 0 {
		return "", false
	}
	rest := content[start+len("《"):]
	end := strings.Index(rest, "》")
	if end <= 0 {
		return "", false
	}
	title := rest[:end]
	if !containsCJK(title) {
		return "", false
	}
	return title, true
}

func containsCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4e00 && r <= 0x9fa5 {
			return true
		}
	}
	return false
}

func (s *Syncer) pause(ctx context.Context) error {
	if s.pageDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(s.pageDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withdrawalChannel maps an earnings title to a withdrawal channel.
// The second return is false for regular reward entries.
func withdrawalChannel(title string) (int, bool) {
	switch title {
	case titleBankWithdrawal:
		return models.WithdrawalBankCard, true
	case titleAlipayWithdrawal:
		return models.WithdrawalAlipay, true
	default:
		return 0, false
	}
}

func parseEarningTime(value string) (time.Time, error) {
	return time.ParseInLocation(earningTimeLayout, value, time.Local)
}
