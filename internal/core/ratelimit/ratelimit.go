// Package ratelimit は固定ウィンドウ方式のレートリミッタを提供する。
//
// ウィンドウ内のカウンタが上限を超える場合、呼び出し側をウィンドウの
// 残り時間だけ待機させる（拒否やドロップはしない）。Embedding API の
// 呼び出し制限と、ニュース取得の日次クォータの両方がこの型を共有する。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowEndFunc は現在時刻からウィンドウの終端時刻を決定する。
type WindowEndFunc func(start time.Time) time.Time

// FixedWindow は固定ウィンドウカウンタによるレートリミッタ。
// カウンタはプロセスローカルであり、再起動をまたいで保持されない。
type FixedWindow struct {
	mu        sync.Mutex
	limit     int
	windowEnd WindowEndFunc

	start time.Time
	count int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*FixedWindow)

// WithClock はテスト用に時刻取得と待機処理を差し替える。
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *FixedWindow) {
		l.now = now
		l.sleep = sleep
	}
}

// WithWindowEnd はウィンドウ終端の決定ロジックを差し替える。
// 日次クォータは NextUTCMidnight を渡すことで同一の型を再利用できる。
func WithWindowEnd(fn WindowEndFunc) Option {
	return func(l *FixedWindow) {
		l.windowEnd = fn
	}
}

// New は window ごとに limit 回まで許可する FixedWindow を作成する。
func New(limit int, window time.Duration, opts ...Option) *FixedWindow {
	l := &FixedWindow{
		limit: limit,
		windowEnd: func(start time.Time) time.Time {
			return start.Add(window)
		},
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewDaily は UTC 日付単位で limit 回まで許可するリミッタを作成する。
// クォータ超過時は翌日の UTC 0 時まで待機する。
func NewDaily(limit int, opts ...Option) *FixedWindow {
	opts = append([]Option{WithWindowEnd(NextUTCMidnight)}, opts...)
	return New(limit, 0, opts...)
}

// NextUTCMidnight は start の翌日 UTC 0 時を返す。
func NextUTCMidnight(start time.Time) time.Time {
	u := start.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// Wait はこれから実行する n 件分の呼び出し枠を確保する。
// 現在のウィンドウに収まらない場合はウィンドウ終端まで待機してから
// 新しいウィンドウで枠を確保する。待機は ctx で中断できる。
//
// n は「これから発行する呼び出し量」であり、事後計上ではなく事前に
// 渡すこと。上限を超えた後に計上すると超過分を止められない。
func (l *FixedWindow) Wait(ctx context.Context, n int) error {
	if l.limit <= 0 || n <= 0 {
		return nil
	}

	l.mu.Lock()
	now := l.now()

	if l.start.IsZero() || !now.Before(l.windowEnd(l.start)) {
		l.start = now
		l.count = 0
	}

	if l.count+n <= l.limit {
		l.count += n
		l.mu.Unlock()
		return nil
	}

	delay := l.windowEnd(l.start).Sub(now)
	l.mu.Unlock()

	if delay > 0 {
		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.start = l.now()
	l.count = n
	l.mu.Unlock()
	return nil
}

// Remaining は現在のウィンドウで残っている呼び出し枠を返す。
func (l *FixedWindow) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return 0
	}
	if l.start.IsZero() || !l.now().Before(l.windowEnd(l.start)) {
		return l.limit
	}
	remaining := l.limit - l.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
