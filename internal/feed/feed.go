// Package feed 定義動態流的核心領域型別
//
// 系統設計問題：
//
//	如何表示一則貼文在每個追蹤者動態流裡的投影？
//
// 核心模型：
//
//	Tweet：作者發出的貼文，likes_count / comments_count 為反正規化欄位
//	Entry：寫擴散（fan-out on write）產生的動態項目，
//	       以 (owner_id, created_at) 為讀取端識別，建立後不可變
package feed

import (
	"fmt"

	"github.com/google/uuid"
)

// Entry 單一用戶動態流中的一個項目
//
// 建立後不可變：只會被建立或由資料保留作業刪除，永不更新。
// 同一個 owner 之下依 created_at 由新到舊排序。
type Entry struct {
	OwnerID   int64     `json:"owner_id"`
	PostID    uuid.UUID `json:"post_id"`
	CreatedAt int64     `json:"created_at"` // unix 奈秒，單調遞增的高解析度時間戳
}

// Tweet 一則貼文
type Tweet struct {
	ID            uuid.UUID `json:"id"`
	UserID        int64     `json:"user_id"`
	Content       string    `json:"content"`
	CreatedAt     int64     `json:"created_at"` // unix 奈秒
	LikesCount    int64     `json:"likes_count"`
	CommentsCount int64     `json:"comments_count"`
}

// EntityRef 計數器快取所指向的持久實體
type EntityRef struct {
	Type string // 實體類型名稱，如 "Tweet"
	ID   string
}

// FeedKey 用戶動態流列表的快取鍵
func FeedKey(ownerID int64) string {
	return fmt.Sprintf("feed:%d", ownerID)
}

// TweetsKey 用戶個人貼文列表的快取鍵
func TweetsKey(ownerID int64) string {
	return fmt.Sprintf("tweets:%d", ownerID)
}

// CountKey 計數器的快取鍵，格式為 {Type}.{attribute}:{id}
func CountKey(ref EntityRef, attr string) string {
	return fmt.Sprintf("%s.%s:%s", ref.Type, attr, ref.ID)
}
