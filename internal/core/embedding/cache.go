package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"time"
)

// Cache はアドバイザリなバイト列キャッシュ。
// ミスは正しさに影響せず、レイテンシとコストにのみ影響する。
// 実装はキャッシュ障害をミスとして扱い、呼び出し元にエラーを返さない。
type Cache interface {
	// Get は key の値を返す。存在しない・取得に失敗した場合は ok=false
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set は key に値を ttl 付きで保存する（ベストエフォート）
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// CacheKey は入力テキストを正規化（trim + 小文字化）した上での
// SHA-256 ハッシュからキャッシュキーを導出する。
// 意味的に同一の呼び出しは同一のエントリに当たる。
func CacheKey(text string) string {
	norm := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(norm))
	return "emb:q:" + hex.EncodeToString(sum[:])
}

// EncodeVector はベクトルをリトルエンディアンの float32 列に直列化する。
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector は EncodeVector の逆変換を行う。
// 長さが 4 の倍数でない場合は破損とみなし nil を返す。
func DecodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector
}
