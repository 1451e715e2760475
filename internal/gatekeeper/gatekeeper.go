// Package gatekeeper 實現功能開關（feature switch）評估
//
// 系統設計問題：
//
//	如何把流量按百分比逐步切換到新後端，且同一個 key 永遠走同一邊？
//
// 設計方案：
//
//	✅ 百分比灰度（0–100）：控制走新後端的流量比例
//	✅ 確定性雜湊：同一 routing key 在同一灰度配置下結果穩定，
//	   絕不是每次呼叫擲硬幣——否則同一用戶的快取會在兩種
//	   線格式之間反覆橫跳
//	✅ 配置注入：開關表在建構時注入，不讀任何全域狀態
package gatekeeper

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Gatekeeper 具名開關的評估器
type Gatekeeper struct {
	// switches 開關名稱 → 灰度百分比（0–100）
	switches map[string]int
}

// New 以開關表創建評估器
//
// 未列出的開關一律視為 0%（關閉）。
func New(switches map[string]int) *Gatekeeper {
	table := make(map[string]int, len(switches))
	for name, percent := range switches {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		table[name] = percent
	}
	return &Gatekeeper{switches: table}
}

// IsSwitchOn 判斷某個 routing key 是否命中開關
//
// 對固定的開關百分比與固定的 key，結果在整個灰度期間穩定不變。
func (g *Gatekeeper) IsSwitchOn(name string, routingKey string) bool {
	percent, ok := g.switches[name]
	if !ok || percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}

	// 雜湊混入開關名稱，避免不同開關用同一把 key 時灰度區間重疊
	bucket := xxhash.Sum64String(name+":"+routingKey) % 100
	return int(bucket) < percent
}

// IsSwitchOnForID 整數 routing key 的便捷版本
func (g *Gatekeeper) IsSwitchOnForID(name string, id int64) bool {
	return g.IsSwitchOn(name, strconv.FormatInt(id, 10))
}
