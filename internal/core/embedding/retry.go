package embedding

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

// Decision はリトライ判断の結果を表す。
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy は (試行回数, エラー) からリトライするかどうかを決定する。
// try/catch の散在ではなく、外部呼び出しに合成する明示的なポリシー
// オブジェクトとして扱う。
type Policy func(attempt int, err error) Decision

// StatusError は HTTP ステータスを持つプロバイダエラーの共通インターフェース。
// 各プロバイダ実装は WrapStatus でエラーを変換して返す。
type StatusError interface {
	error
	HTTPStatus() int
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) HTTPStatus() int { return e.status }
func (e *statusError) Unwrap() error   { return e.err }

// WrapStatus はプロバイダエラーを HTTP ステータス付きで包む。
func WrapStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	return &statusError{status: status, err: err}
}

const (
	// DefaultMaxRetries はリトライの既定上限
	DefaultMaxRetries = 3

	// DefaultBaseDelay は指数バックオフの基底待機時間
	DefaultBaseDelay = 250 * time.Millisecond

	// MaxDelay はバックオフ待機時間の上限
	MaxDelay = 5 * time.Second
)

// DefaultPolicy は既定のリトライポリシーを返す。
// タイムアウト・429・5xx に加え、トークンリフレッシュ競合で一時的に
// 発生しうる 401/403 もリトライ対象とする。待機は
// base × 2^(attempt-1)（上限 5s）に [0.75, 1.0) のジッタを掛けた値。
func DefaultPolicy(maxRetries int, baseDelay time.Duration) Policy {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	return func(attempt int, err error) Decision {
		if attempt > maxRetries || !isRetryable(err) {
			return Decision{}
		}
		return Decision{Retry: true, Delay: backoffDelay(attempt, baseDelay)}
	}
}

func backoffDelay(attempt int, base time.Duration) time.Duration {
	exp := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(base) * exp)
	if delay > MaxDelay {
		delay = MaxDelay
	}
	jitter := 0.75 + rand.Float64()*0.25
	return time.Duration(float64(delay) * jitter)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		switch status := statusErr.HTTPStatus(); {
		case status == 401 || status == 403:
			return true
		case status == 408 || status == 429:
			return true
		case status >= 500 && status <= 599:
			return true
		default:
			return false
		}
	}

	return false
}
