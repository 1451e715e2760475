package feed

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// RowKeyLen 寬列儲存 row key 的固定長度：
// owner_id(8) + 反向時間戳(8) + post_id(16)
const RowKeyLen = 8 + 8 + 16

// EncodeRowKey 將動態項目編碼為寬列儲存的 row key
//
// 佈局：{owner_id: 8 bytes big-endian}{^created_at: 8 bytes}{post_id: 16 bytes}
//
// 時間戳取位元反轉（^ts）後，越新的項目 key 越小，
// 因此以 owner 為前綴的正向字典序掃描天然得到由新到舊的結果，
// 不需要儲存引擎支援反向掃描。
func EncodeRowKey(e Entry) []byte {
	key := make([]byte, RowKeyLen)
	binary.BigEndian.PutUint64(key[0:8], uint64(e.OwnerID))
	binary.BigEndian.PutUint64(key[8:16], ^uint64(e.CreatedAt))
	copy(key[16:32], e.PostID[:])
	return key
}

// DecodeRowKey 從 row key 還原動態項目
func DecodeRowKey(key []byte) (Entry, error) {
	if len(key) != RowKeyLen {
		return Entry{}, fmt.Errorf("invalid row key length %d", len(key))
	}

	var postID uuid.UUID
	copy(postID[:], key[16:32])

	return Entry{
		OwnerID:   int64(binary.BigEndian.Uint64(key[0:8])),
		CreatedAt: int64(^binary.BigEndian.Uint64(key[8:16])),
		PostID:    postID,
	}, nil
}

// OwnerPrefix 某個 owner 所有 row key 的共同前綴
func OwnerPrefix(ownerID int64) []byte {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(ownerID))
	return prefix
}

// OwnerScanRange 回傳掃描某個 owner 全部項目的 [start, stop) 範圍
func OwnerScanRange(ownerID int64) (start, stop []byte) {
	start = OwnerPrefix(ownerID)
	stop = make([]byte, RowKeyLen)
	copy(stop, start)
	for i := 8; i < RowKeyLen; i++ {
		stop[i] = 0xFF
	}
	// stop 本身指向該 owner 理論上的最大 key，掃描時以其為排除上界，
	// 再補一個尾端位元組確保涵蓋整個前綴空間
	stop = append(stop, 0xFF)
	return start, stop
}

// ScanStartAfter 回傳「嚴格早於 createdAt」的掃描起點
//
// 反向時間戳遞增一即對應 created_at 遞減一，
// 等價於關聯式後端的 created_at < cursor 述詞。
func ScanStartAfter(ownerID int64, createdAt int64) []byte {
	start := make([]byte, 16)
	binary.BigEndian.PutUint64(start[0:8], uint64(ownerID))
	binary.BigEndian.PutUint64(start[8:16], ^uint64(createdAt)+1)
	return start
}
